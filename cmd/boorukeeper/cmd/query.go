package cmd

import (
	"context"
	"fmt"

	"github.com/solatis/boorukeeper/internal/core/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Query commands run the board service in-process, or against a running
// server with --remote. Output is the response Struct as JSON.

var remoteAddr string

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List posts (also popular and pool posts via --op)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		req := map[string]any{
			"site":      mustString(f.GetString("site")),
			"operation": mustString(f.GetString("op")),
			"page":      mustString(f.GetString("page")),
			"limit":     mustInt(f.GetInt("limit")),
			"tags":      toList(mustStrings(f.GetStringSlice("tags"))),
			"quality":   mustString(f.GetString("quality")),
			"pool_id":   mustInt(f.GetInt("pool")),
			"date":      mustString(f.GetString("date")),
		}
		if f.Changed("ratings") {
			req["ratings"] = toList(mustStrings(f.GetStringSlice("ratings")))
		}
		return query(cmd, api.MethodGetPosts, req)
	},
}

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List pools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		return query(cmd, api.MethodGetPools, map[string]any{
			"site":  mustString(f.GetString("site")),
			"name":  mustString(f.GetString("name")),
			"page":  mustString(f.GetString("page")),
			"limit": mustInt(f.GetInt("limit")),
		})
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Search tags by name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		prefix, _ := f.GetBool("prefix")
		return query(cmd, api.MethodSearchTags, map[string]any{
			"site":   mustString(f.GetString("site")),
			"name":   mustString(f.GetString("name")),
			"prefix": prefix,
			"page":   mustString(f.GetString("page")),
			"limit":  mustInt(f.GetInt("limit")),
		})
	},
}

var findTagCmd = &cobra.Command{
	Use:   "find-tag NAME",
	Short: "Scan a site's tag search for an exact tag name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		exact, _ := f.GetBool("exact")
		return query(cmd, api.MethodFindTag, map[string]any{
			"site":      mustString(f.GetString("site")),
			"name":      args[0],
			"exact":     exact,
			"max_pages": mustInt(f.GetInt("max-pages")),
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Look a user up by name or id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		return query(cmd, api.MethodGetUser, map[string]any{
			"site": mustString(f.GetString("site")),
			"name": mustString(f.GetString("name")),
			"id":   mustInt(f.GetInt("id")),
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{postsCmd, poolsCmd, tagsCmd, findTagCmd, userCmd} {
		c.Flags().String("site", "", "site name or backend (e.g. danbooru, yande.re)")
		c.Flags().StringVar(&remoteAddr, "remote", "", "address of a running board service (host:port)")
		_ = c.MarkFlagRequired("site")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{postsCmd, poolsCmd, tagsCmd} {
		c.Flags().String("page", "", "page token from a previous response")
		c.Flags().Int("limit", 0, "page size (0 uses the site default)")
	}

	postsCmd.Flags().String("op", "", "operation: posts, popular_day, popular_week, popular_month, pool_posts")
	postsCmd.Flags().StringSlice("tags", nil, "search tags")
	postsCmd.Flags().StringSlice("ratings", nil, "rating selection (general, sensitive, questionable, explicit)")
	postsCmd.Flags().String("quality", "", "media quality for the url field (preview, sample, large, original)")
	postsCmd.Flags().Int("pool", 0, "pool id for pool_posts")
	postsCmd.Flags().String("date", "", "date for popular operations (YYYY-MM-DD)")

	poolsCmd.Flags().String("name", "", "pool name filter")

	tagsCmd.Flags().String("name", "", "tag name")
	tagsCmd.Flags().Bool("prefix", false, "match tags starting with name")

	findTagCmd.Flags().Bool("exact", false, "query the exact name instead of a prefix scan")
	findTagCmd.Flags().Int("max-pages", 0, "pages to scan before giving up (0 uses tagsearch.max_pages)")

	userCmd.Flags().String("name", "", "user name")
	userCmd.Flags().Int("id", 0, "user id")
}

// query sends req to method and prints the response.
func query(cmd *cobra.Command, method string, fields map[string]any) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := structpb.NewStruct(dropEmpty(fields))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	var resp *structpb.Struct
	if remoteAddr != "" {
		resp, err = callRemote(ctx, method, req)
	} else {
		resp, err = callLocal(ctx, method, req)
	}
	if err != nil {
		return err
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func callLocal(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	rt, err := newApp(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	handlers := map[string]func(context.Context, *structpb.Struct) (*structpb.Struct, error){
		api.MethodGetPosts:   rt.service.GetPosts,
		api.MethodGetPools:   rt.service.GetPools,
		api.MethodSearchTags: rt.service.SearchTags,
		api.MethodGetUser:    rt.service.GetUser,
		api.MethodFindTag:    rt.service.FindTag,
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	defer cancel()
	return handlers[method](ctx, req)
}

func callRemote(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	conn, err := grpc.NewClient(remoteAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", remoteAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	defer cancel()
	return api.NewBoardClient(conn).Call(ctx, method, req)
}

// dropEmpty removes zero values so absent flags read as absent fields.
func dropEmpty(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case string:
			if x == "" {
				continue
			}
		case int:
			if x == 0 {
				continue
			}
		case bool:
			if !x {
				continue
			}
		case []any:
			if len(x) == 0 && k != "ratings" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func toList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// Flag getters only fail for flags that were never defined.
func mustString(s string, _ error) string     { return s }
func mustInt(n int, _ error) int              { return n }
func mustStrings(s []string, _ error) []string { return s }
