package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// GetQueryCmd returns the cli query commands for the pool module
func GetQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        types.ModuleName,
		Short:                      "Querying commands for the pool module",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdQueryPool(),
		CmdQueryPools(),
		CmdQueryMembers(),
		CmdQueryAvailable(),
		CmdQueryNextPoolID(),
	)

	return cmd
}

// ParsePoolID parses a pool id argument
func ParsePoolID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid pool id %q", arg)
	}
	return id, nil
}

func queryPool(clientCtx client.Context, poolID uint64) (*types.Pool, error) {
	bz, _, err := clientCtx.QueryStore(types.PoolKey(poolID), types.StoreKey)
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("%w: pool %d", types.ErrPoolNotFound, poolID)
	}
	var pool types.Pool
	if err := json.Unmarshal(bz, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func queryMembers(clientCtx client.Context, poolID uint64) ([]*types.Member, error) {
	pairs, _, err := clientCtx.QuerySubspace(types.MemberPrefix(poolID), types.StoreKey)
	if err != nil {
		return nil, err
	}
	members := make([]*types.Member, 0, len(pairs))
	for _, pair := range pairs {
		var m types.Member
		if err := json.Unmarshal(pair.Value, &m); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, nil
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

// CmdQueryPool returns the command to query one pool
func CmdQueryPool() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool [pool-id]",
		Short: "Query pool metadata and balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientQueryContext(cmd)
			if err != nil {
				return err
			}
			poolID, err := ParsePoolID(args[0])
			if err != nil {
				return err
			}
			pool, err := queryPool(clientCtx, poolID)
			if err != nil {
				return err
			}
			return printJSON(pool)
		},
	}

	flags.AddQueryFlagsToCmd(cmd)
	return cmd
}

// CmdQueryPools returns the command to list all pools
func CmdQueryPools() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List all pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientQueryContext(cmd)
			if err != nil {
				return err
			}
			pairs, _, err := clientCtx.QuerySubspace(types.PoolKeyPrefix, types.StoreKey)
			if err != nil {
				return err
			}
			pools := make([]*types.Pool, 0, len(pairs))
			for _, pair := range pairs {
				var pool types.Pool
				if err := json.Unmarshal(pair.Value, &pool); err != nil {
					return err
				}
				pools = append(pools, &pool)
			}
			return printJSON(pools)
		},
	}

	flags.AddQueryFlagsToCmd(cmd)
	return cmd
}

// CmdQueryMembers returns the command to list pool members
func CmdQueryMembers() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members [pool-id]",
		Short: "List pool members including the creator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientQueryContext(cmd)
			if err != nil {
				return err
			}
			poolID, err := ParsePoolID(args[0])
			if err != nil {
				return err
			}
			pool, err := queryPool(clientCtx, poolID)
			if err != nil {
				return err
			}
			members, err := queryMembers(clientCtx, poolID)
			if err != nil {
				return err
			}
			return printJSON(types.MemberInfos(pool, members))
		},
	}

	flags.AddQueryFlagsToCmd(cmd)
	return cmd
}

// CmdQueryAvailable returns the command to query an address's available balance
func CmdQueryAvailable() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available [pool-id] [address]",
		Short: "Query what an address can withdraw from a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientQueryContext(cmd)
			if err != nil {
				return err
			}
			poolID, err := ParsePoolID(args[0])
			if err != nil {
				return err
			}
			if _, err := sdk.AccAddressFromBech32(args[1]); err != nil {
				return err
			}
			pool, err := queryPool(clientCtx, poolID)
			if err != nil {
				return err
			}
			members, err := queryMembers(clientCtx, poolID)
			if err != nil {
				return err
			}
			available := "0"
			for _, info := range types.MemberInfos(pool, members) {
				if info.Address == args[1] {
					available = info.Available.String()
				}
			}
			return printJSON(map[string]string{
				"pool_id":   args[0],
				"address":   args[1],
				"available": available,
			})
		},
	}

	flags.AddQueryFlagsToCmd(cmd)
	return cmd
}

// CmdQueryNextPoolID returns the command to query the pool id counter
func CmdQueryNextPoolID() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-pool-id",
		Short: "Query the id the next pool will receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientQueryContext(cmd)
			if err != nil {
				return err
			}
			bz, _, err := clientCtx.QueryStore(types.NextPoolIDKey, types.StoreKey)
			if err != nil {
				return err
			}
			next := uint64(1)
			if len(bz) == 8 {
				next = sdk.BigEndianToUint64(bz)
			}
			return printJSON(map[string]uint64{"next_pool_id": next})
		},
	}

	flags.AddQueryFlagsToCmd(cmd)
	return cmd
}
