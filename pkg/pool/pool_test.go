package pool

import (
	"testing"

	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *Pool {
	return &Pool{
		Name:         "worker-a",
		MinCapacity:  0,
		MaxCapacity:  20,
		ScalingRatio: 1,
		MinPrice:     0.1,
		MaxPrice:     2,
		LaunchSpec: types.LaunchSpec{
			ImageID:        "img-base",
			SecurityGroups: []string{"default"},
			Tags:           map[string]string{"team": "ci"},
		},
		Regions: []Region{
			{Name: "us-east-1", LaunchSpec: types.LaunchSpec{ImageID: "img-east"}},
			{Name: "us-west-2"},
		},
		InstanceTypes: []InstanceType{
			{Type: "m5.large", Capacity: 1, Utility: 1},
			{Type: "m5.xlarge", Capacity: 2, Utility: 1.5, LaunchSpec: types.LaunchSpec{SecurityGroups: []string{"big"}}},
		},
		Secrets: map[string]string{"token": "s3cret"},
		Scopes:  []string{"queue:claim-work"},
	}
}

func TestRatioPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  RatioPolicy
		running int
		pending int
		backlog int
		want    int
	}{
		{
			name:    "scale up to cover backlog",
			policy:  RatioPolicy{MinCapacity: 0, MaxCapacity: 100, ScalingRatio: 1},
			running: 3, pending: 2, backlog: 10,
			want: 8,
		},
		{
			name:    "fractional ratio rounds up",
			policy:  RatioPolicy{MinCapacity: 0, MaxCapacity: 100, ScalingRatio: 0.6},
			running: 3, pending: 2, backlog: 10,
			want: 4,
		},
		{
			name:    "capped at max capacity",
			policy:  RatioPolicy{MinCapacity: 0, MaxCapacity: 10, ScalingRatio: 1},
			running: 5, pending: 2, backlog: 50,
			want: 3,
		},
		{
			name:    "raised to min capacity",
			policy:  RatioPolicy{MinCapacity: 4, MaxCapacity: 10, ScalingRatio: 1},
			running: 0, pending: 0, backlog: 0,
			want: 4,
		},
		{
			name:    "excess pending shrinks to min",
			policy:  RatioPolicy{MinCapacity: 12, MaxCapacity: 20, ScalingRatio: 1},
			running: 10, pending: 5, backlog: 0,
			want: -3,
		},
		{
			name:    "steady state",
			policy:  RatioPolicy{MinCapacity: 0, MaxCapacity: 20, ScalingRatio: 1},
			running: 10, pending: 4, backlog: 4,
			want: 0,
		},
		{
			name:    "over max while running",
			policy:  RatioPolicy{MinCapacity: 0, MaxCapacity: 5, ScalingRatio: 1},
			running: 8, pending: 0, backlog: 0,
			want: -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.CapacityChange(tt.running, tt.pending, tt.backlog)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPoolCapacityChangeUsesOverride(t *testing.T) {
	p := testPool()
	var gotArgs []int
	p.WithPolicy(PolicyFunc(func(running, pending, backlog int) int {
		gotArgs = []int{running, pending, backlog}
		return 0
	}))

	assert.Equal(t, 0, p.CapacityChange(1, 2, 3))
	assert.Equal(t, []int{1, 2, 3}, gotArgs)
}

func TestPoolCapacityChangeDefaultsToRatio(t *testing.T) {
	p := testPool()
	assert.Equal(t, 8, p.CapacityChange(3, 2, 10))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Pool)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Pool) {}},
		{name: "empty name", mutate: func(p *Pool) { p.Name = "" }, wantErr: true},
		{name: "max below min", mutate: func(p *Pool) { p.MinCapacity = 5; p.MaxCapacity = 1 }, wantErr: true},
		{name: "negative ratio", mutate: func(p *Pool) { p.ScalingRatio = -1 }, wantErr: true},
		{name: "price inverted", mutate: func(p *Pool) { p.MaxPrice = 0.01 }, wantErr: true},
		{name: "no regions", mutate: func(p *Pool) { p.Regions = nil }, wantErr: true},
		{name: "no instance types", mutate: func(p *Pool) { p.InstanceTypes = nil }, wantErr: true},
		{name: "duplicate region", mutate: func(p *Pool) { p.Regions = append(p.Regions, Region{Name: "us-west-2"}) }, wantErr: true},
		{name: "zero capacity", mutate: func(p *Pool) { p.InstanceTypes[0].Capacity = 0 }, wantErr: true},
		{name: "zero utility", mutate: func(p *Pool) { p.InstanceTypes[0].Utility = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPool()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLaunchFor(t *testing.T) {
	p := testPool()

	launch, err := p.LaunchFor("prov-1", "us-east-1", "m5.xlarge")
	require.NoError(t, err)

	assert.Equal(t, "img-east", launch.Spec.ImageID)
	assert.Equal(t, "m5.xlarge", launch.Spec.InstanceType)
	assert.Equal(t, []string{"big"}, launch.Spec.SecurityGroups)
	assert.Equal(t, "ci", launch.Spec.Tags["team"])
	assert.Equal(t, "worker-a", launch.Spec.Tags["Name"])
	assert.Equal(t, "prov-1", launch.Spec.Tags["Owner"])
	assert.Equal(t, "prov-1:worker-a", launch.Spec.KeyName)
	assert.Equal(t, 2, launch.Capacity)
	assert.Equal(t, "s3cret", launch.Secrets["token"])
	assert.Equal(t, []string{"queue:claim-work"}, launch.Scopes)
	assert.Equal(t, "us-east-1", launch.UserData.Region)
	assert.Empty(t, launch.UserData.SecurityToken)

	// Overlays must not leak into the pool definition
	assert.Equal(t, []string{"default"}, p.LaunchSpec.SecurityGroups)
	assert.NotContains(t, p.LaunchSpec.Tags, "Name")
}

func TestLaunchForBaseImage(t *testing.T) {
	p := testPool()

	launch, err := p.LaunchFor("prov-1", "us-west-2", "m5.large")
	require.NoError(t, err)
	assert.Equal(t, "img-base", launch.Spec.ImageID)
	assert.Equal(t, []string{"default"}, launch.Spec.SecurityGroups)
}

func TestLaunchForRejectsUnknown(t *testing.T) {
	p := testPool()

	_, err := p.LaunchFor("prov-1", "eu-west-1", "m5.large")
	assert.Error(t, err)

	_, err = p.LaunchFor("prov-1", "us-east-1", "c5.large")
	assert.Error(t, err)
}

func TestUserDataRoundTrip(t *testing.T) {
	u := UserData{ProvisionerID: "prov-1", Pool: "worker-a", SecurityToken: "tok", Capacity: 2}
	encoded, err := u.Encode()
	require.NoError(t, err)

	decoded, err := DecodeUserData(encoded)
	require.NoError(t, err)
	assert.Equal(t, "tok", decoded.SecurityToken)
	assert.Equal(t, 2, decoded.Capacity)

	_, err = DecodeUserData("not base64!")
	assert.Error(t, err)
}
