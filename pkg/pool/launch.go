package pool

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// UserData is handed to a booting instance through its launch spec
type UserData struct {
	ProvisionerID string    `json:"provisionerId"`
	Pool          string    `json:"workerType"`
	Region        string    `json:"region"`
	InstanceType  string    `json:"instanceType"`
	Capacity      int       `json:"capacity"`
	SecurityToken string    `json:"securityToken"`
	LaunchedAt    time.Time `json:"launchSpecGenerated"`
}

// Encode returns the base64 JSON form carried in LaunchSpec.UserData
func (u UserData) Encode() (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeUserData parses the form produced by UserData.Encode
func DecodeUserData(encoded string) (*UserData, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user data: %w", err)
	}
	var u UserData
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	return &u, nil
}

// Launch is everything needed to boot one instance of a pool, before the
// security token and placement are known.
type Launch struct {
	Spec     types.LaunchSpec
	UserData UserData
	Secrets  map[string]string
	Scopes   []string
	Capacity int
}

// LaunchFor builds the launch specification for an instance type in a region.
// The pool's base spec is overlaid with the region's and then the instance
// type's overlay.
func (p *Pool) LaunchFor(provisionerID, region, instanceType string) (*Launch, error) {
	r, ok := p.Region(region)
	if !ok {
		return nil, fmt.Errorf("pool %s: region %s is not allowed", p.Name, region)
	}
	it, ok := p.InstanceType(instanceType)
	if !ok {
		return nil, fmt.Errorf("pool %s: instance type %s is not allowed", p.Name, instanceType)
	}

	spec := overlay(p.LaunchSpec, r.LaunchSpec)
	spec = overlay(spec, it.LaunchSpec)
	spec.InstanceType = it.Type
	spec.UserData = ""
	if spec.KeyName == "" {
		spec.KeyName = KeyPairName(provisionerID, p.Name)
	}
	if spec.ImageID == "" {
		return nil, fmt.Errorf("pool %s: no image configured for %s in %s", p.Name, instanceType, region)
	}

	spec.Tags = mergeTags(spec.Tags, map[string]string{
		"Name":       p.Name,
		"Owner":      provisionerID,
		"WorkerType": provisionerID + "/" + p.Name,
	})

	secrets := make(map[string]string, len(p.Secrets))
	for k, v := range p.Secrets {
		secrets[k] = v
	}

	return &Launch{
		Spec: spec,
		UserData: UserData{
			ProvisionerID: provisionerID,
			Pool:          p.Name,
			Region:        region,
			InstanceType:  it.Type,
			Capacity:      it.Capacity,
			LaunchedAt:    time.Now().UTC(),
		},
		Secrets:  secrets,
		Scopes:   append([]string(nil), p.Scopes...),
		Capacity: it.Capacity,
	}, nil
}

// KeyPairName is the name of the key pair registered for a pool
func KeyPairName(provisionerID, pool string) string {
	return provisionerID + ":" + pool
}

// overlay returns base with every non-empty field of top applied over it
func overlay(base, top types.LaunchSpec) types.LaunchSpec {
	out := base
	if top.ImageID != "" {
		out.ImageID = top.ImageID
	}
	if top.InstanceType != "" {
		out.InstanceType = top.InstanceType
	}
	if top.KeyName != "" {
		out.KeyName = top.KeyName
	}
	if len(top.SecurityGroups) > 0 {
		out.SecurityGroups = append([]string(nil), top.SecurityGroups...)
	} else {
		out.SecurityGroups = append([]string(nil), base.SecurityGroups...)
	}
	if top.AvailabilityZone != "" {
		out.AvailabilityZone = top.AvailabilityZone
	}
	out.Tags = mergeTags(base.Tags, top.Tags)
	return out
}

func mergeTags(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
