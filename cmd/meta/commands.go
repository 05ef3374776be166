package meta

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/spf13/cobra"
)

// recordView is the printed form of a record
type recordView struct {
	Key          string `yaml:"key"`
	Value        string `yaml:"value"`
	Version      uint64 `yaml:"version"`
	CreatedIndex uint64 `yaml:"created_index"`
	UpdatedIndex uint64 `yaml:"updated_index"`
}

func viewOf(rec statemachine.Record) recordView {
	return recordView{
		Key:          rec.Key,
		Value:        string(rec.Value),
		Version:      rec.Version,
		CreatedIndex: rec.CreatedIndex,
		UpdatedIndex: rec.UpdatedIndex,
	}
}

// printOutcome prints the result of a conditional write
func printOutcome(op string, out statemachine.ApplyOutcome) {
	if out.Applied {
		version := uint64(0)
		if out.Result != nil {
			version = out.Result.Version
		}
		fmt.Printf("%s applied at index %d (version %d)\n", op, out.Index, version)
		return
	}
	fmt.Printf("%s not applied at index %d: %s\n", op, out.Index, out.Conflict)
}

// matchFromFlags builds the write condition from --if-absent and --if-version
func matchFromFlags(cmd *cobra.Command) (statemachine.MatchSeq, error) {
	absent, _ := cmd.Flags().GetBool("if-absent")
	version, _ := cmd.Flags().GetUint64("if-version")
	switch {
	case absent && version > 0:
		return statemachine.MatchSeq{}, fmt.Errorf("--if-absent and --if-version are mutually exclusive")
	case absent:
		return statemachine.Absent(), nil
	case version > 0:
		return statemachine.Exact(version), nil
	default:
		return statemachine.Any(), nil
	}
}

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the record for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := consistency()
			if err != nil {
				return err
			}
			rec, found, err := rpcStore.Get(cmd.Context(), args[0], level)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			return util.PrintYAML(viewOf(rec))
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [prefix]",
		Short: "Lists all records whose key starts with prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			level, err := consistency()
			if err != nil {
				return err
			}
			recs, err := rpcStore.List(cmd.Context(), prefix, level)
			if err != nil {
				return err
			}
			views := make([]recordView, 0, len(recs))
			for _, rec := range recs {
				views = append(views, viewOf(rec))
			}
			return util.PrintYAML(views)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Long:  "Sets the value for a key. With --if-absent the key is only created, with --if-version it is only updated if its version matches (compare-and-swap)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := matchFromFlags(cmd)
			if err != nil {
				return err
			}
			out, err := rpcStore.Upsert(cmd.Context(), args[0], match, []byte(args[1]))
			if err != nil {
				return err
			}
			printOutcome("put", out)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := matchFromFlags(cmd)
			if err != nil {
				return err
			}
			out, err := rpcStore.Delete(cmd.Context(), args[0], match)
			if err != nil {
				return err
			}
			printOutcome("delete", out)
			return nil
		},
	}
	membersCmd = &cobra.Command{
		Use:   "members",
		Short: "Prints the cluster membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := rpcStore.Members(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintYAML(m)
		},
	}
	addNodeCmd = &cobra.Command{
		Use:   "add-node [id] [raft-address]",
		Short: "Adds a replica to the cluster",
		Long:  "Adds a replica to the cluster. The new replica must then be started with 'dmeta serve --join'",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[0])
			if err != nil {
				return err
			}
			if err := rpcStore.AddNode(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Printf("node %s (%s) added\n", args[0], strconv.FormatUint(id, 10))
			return nil
		},
	}
	removeNodeCmd = &cobra.Command{
		Use:   "remove-node [id]",
		Short: "Removes a replica from the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[0])
			if err != nil {
				return err
			}
			if err := rpcStore.RemoveNode(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("node %s (%s) removed\n", args[0], strconv.FormatUint(id, 10))
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{putCmd, delCmd} {
		cmd.Flags().Bool("if-absent", false, util.WrapString("Only apply the write if the key does not exist"))
		cmd.Flags().Uint64("if-version", 0, util.WrapString("Only apply the write if the record has this version"))
	}
}
