package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage pool definitions",
}

var poolApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update pools from a YAML file",
	Long: `Create or update pool definitions from a YAML file. The file may hold
several pools separated by '---'. Changes take effect on the next sweep.

Example pool:

  name: worker-a
  owner: ci-team
  minCapacity: 0
  maxCapacity: 20
  scalingRatio: 1
  maxPrice: 0.5
  launchSpec:
    imageId: img-0123
  regions:
    - region: us-east-1
  instanceTypes:
    - instanceType: m5.large
      capacity: 1
      utility: 1`,
	RunE: runPoolApply,
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pools",
	RunE:  runPoolList,
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a pool",
	Long: `Delete a pool definition. Capacity still running for the pool is
terminated by the rogue killer on the next sweep.`,
	Args: cobra.ExactArgs(1),
	RunE: runPoolDelete,
}

func init() {
	poolApplyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = poolApplyCmd.MarkFlagRequired("file")

	poolCmd.AddCommand(poolApplyCmd)
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolDeleteCmd)
}

// decodePools reads every YAML document in r as a pool definition
func decodePools(r io.Reader) ([]*pool.Pool, error) {
	var pools []*pool.Pool
	dec := yaml.NewDecoder(r)
	for {
		var p pool.Pool
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if p.Name == "" && len(p.Regions) == 0 {
			// empty document
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		pools = append(pools, &p)
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("no pools found")
	}
	return pools, nil
}

func runPoolApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	pools, err := decodePools(f)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, p := range pools {
		_, err := store.GetPool(p.Name)
		exists := err == nil
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		p.LastModified = time.Now().UTC()
		if err := store.PutPool(p); err != nil {
			return fmt.Errorf("failed to save pool %s: %w", p.Name, err)
		}
		if exists {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool updated: %s\n", p.Name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool created: %s\n", p.Name)
		}
	}
	return nil
}

func runPoolList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pools, err := store.ListPools()
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pools defined")
		return nil
	}

	sort.Slice(pools, func(i, j int) bool { return pools[i].Name < pools[j].Name })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tOWNER\tMIN\tMAX\tRATIO\tREGIONS\tINSTANCE TYPES")
	for _, p := range pools {
		types := make([]string, 0, len(p.InstanceTypes))
		for _, it := range p.InstanceTypes {
			types = append(types, it.Type)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%g\t%v\t%v\n",
			p.Name, p.Owner, p.MinCapacity, p.MaxCapacity, p.ScalingRatio, p.RegionNames(), types)
	}
	return w.Flush()
}

func runPoolDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeletePool(args[0]); err != nil {
		return fmt.Errorf("failed to delete pool %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool deleted: %s\n", args[0])
	return nil
}
