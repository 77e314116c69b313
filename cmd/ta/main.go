package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskanchor/internal/app"
	"taskanchor/internal/config"
	"taskanchor/internal/db"
	"taskanchor/internal/domain"
	"taskanchor/internal/engine"
	"taskanchor/internal/rolesync"
	"taskanchor/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ta",
	Short: "TaskAnchor CLI",
	Long: `TaskAnchor commits task payloads to a ledger and tracks their lifecycle.
Every created task is canonicalized, hashed and anchored on the commitment
contract before it is stored; execution attaches proofs, moderation blocks or
cancels, and verify recomputes the hash against the anchor at any time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKANCHOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace with a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskExecuteCmd())
	task.AddCommand(taskExecuteBatchCmd())
	task.AddCommand(taskVerifyCmd())
	task.AddCommand(taskModerateCmd())
	task.AddCommand(taskProofsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var in engine.PayloadInput
	var ownerID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and anchor a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				owner := ownerID
				if owner == "" {
					owner = viper.GetString("actor-id")
				}
				task, err := a.Engine.CreateTask(ctx, engine.CreateTaskInput{OwnerID: owner, Payload: in})
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&in.TransactionID, "transaction-id", "", "unique transaction id")
	cmd.Flags().StringVar(&in.TaskType, "type", "", "task type (liquidation, acquisition, authorization, arbitrage, vault)")
	cmd.Flags().StringVar(&in.CompanyAndArtist, "company-and-artist", "", "company and artist")
	cmd.Flags().StringVar(&in.TargetPriceEth, "target-price-eth", "", "target price in ETH")
	cmd.Flags().StringVar(&in.Scope, "scope", "", "authorization scope")
	cmd.Flags().StringVar(&in.TargetPricePerToken, "target-price-per-token", "", "target price per token")
	cmd.Flags().StringVar(&in.Amount, "amount", "", "amount")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "currency")
	cmd.Flags().StringVar(&in.Duration, "duration", "", "duration")
	cmd.Flags().StringVar(&in.Deadline, "deadline", "", "deadline")
	cmd.Flags().StringVar(&in.DateDeadline, "date-deadline", "", "date deadline")
	cmd.Flags().StringVar(&in.TechnicalVerification, "technical-verification", "", "technical verification note")
	cmd.Flags().StringVar(&in.Chain, "chain", "", "chain")
	cmd.Flags().StringVar(&in.Platform, "platform", "", "platform")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&in.Details, "details", "", "details")
	_ = cmd.MarkFlagRequired("transaction-id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.TaskListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListTasks(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Transaction", "Type", "State", "Hash", "Ledger Ref"})
				for _, t := range page.Items {
					tw.AppendRow(table.Row{t.ID, t.TransactionID, t.TaskType, t.State, short(t.TaskHash), t.LedgerTxRef})
				}
				tw.Render()
				fmt.Printf("page %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "task type filter")
	cmd.Flags().StringVar(&opts.State, "state", "", "state filter")
	cmd.Flags().StringVar(&opts.Search, "search", "", "search transaction id, hash or ledger ref")
	cmd.Flags().StringVar(&opts.From, "from", "", "created from (RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "created to (RFC3339)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "page size")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				task, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	return cmd
}

func taskExecuteCmd() *cobra.Command {
	var proofs, images []string
	cmd := &cobra.Command{
		Use:   "execute <task-id>",
		Short: "Execute a task with proofs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				task, err := a.Engine.ExecuteTask(ctx, args[0], viper.GetString("actor-id"), buildProofs(proofs, images))
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringArrayVar(&proofs, "proof", []string{}, "text proof (repeatable)")
	cmd.Flags().StringArrayVar(&images, "image", []string{}, "image proof reference (repeatable)")
	return cmd
}

func taskExecuteBatchCmd() *cobra.Command {
	var proof, file string
	cmd := &cobra.Command{
		Use:   "execute-batch [task-id...]",
		Short: "Execute several tasks, item by item",
		Long: `Executes each listed task with the shared --proof text, or reads a JSON
file of {"task_id": ..., "proofs": [...]} items with --file. One item failing
does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []engine.BatchItem
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var raw []struct {
					TaskID string `json:"task_id"`
					Proofs []struct {
						Type  string `json:"type"`
						Value string `json:"value"`
					} `json:"proofs"`
				}
				if err := json.Unmarshal(data, &raw); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				for _, r := range raw {
					item := engine.BatchItem{TaskID: r.TaskID}
					for _, p := range r.Proofs {
						item.Proofs = append(item.Proofs, engine.ProofInput{Type: p.Type, Value: p.Value})
					}
					items = append(items, item)
				}
			case len(args) > 0:
				if proof == "" {
					return fmt.Errorf("--proof required when listing task ids")
				}
				for _, id := range args {
					items = append(items, engine.BatchItem{
						TaskID: id,
						Proofs: []engine.ProofInput{{Type: domain.ProofText, Value: proof}},
					})
				}
			default:
				return fmt.Errorf("provide task ids or --file")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ExecuteBatch(ctx, viper.GetString("actor-id"), items)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&proof, "proof", "", "shared text proof for listed task ids")
	cmd.Flags().StringVar(&file, "file", "", "JSON file of batch items")
	return cmd
}

func taskVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <task-id>",
		Short: "Recompute a task's canonical hash and check the ledger anchor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func taskModerateCmd() *cobra.Command {
	var state, reason string
	cmd := &cobra.Command{
		Use:   "moderate <task-id>",
		Short: "Block or cancel a stored task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				task, err := a.Engine.Moderate(ctx, args[0], viper.GetString("actor-id"), state, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "blocked or cancelled")
	cmd.Flags().StringVar(&reason, "reason", "", "moderation reason")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func taskProofsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proofs <task-id>",
		Short: "List a task's execution proofs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				proofs, err := a.Engine.GetTaskProofs(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(proofs)
			})
		},
	}
	return cmd
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage roles and the on-chain ACL"}
	role.AddCommand(roleAssignCmd())
	role.AddCommand(roleDriftCmd())
	return role
}

func roleAssignCmd() *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign roles and sync the contract ACL",
		Long:  `Each --set takes user-id=role. Admin and consultant grant the store role on chain, member revokes it. Items apply independently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var assignments []rolesync.Assignment
			for _, p := range pairs {
				userID, role, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q, want user-id=role", p)
				}
				assignments = append(assignments, rolesync.Assignment{UserID: userID, Role: role})
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Roles.AssignRoles(ctx, viper.GetString("actor-id"), assignments)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "set", []string{}, "user-id=role (repeatable)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func roleDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Report users whose database role disagrees with the ACL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				drifts, err := a.Roles.Check(ctx, args)
				if err != nil {
					return err
				}
				if len(drifts) == 0 {
					fmt.Println("in sync")
					return nil
				}
				return printJSONOrTable(drifts)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var address, role, name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, address, role, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "ledger account address")
	cmd.Flags().StringVar(&role, "role", domain.RoleMember, "role (admin, consultant, member)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.Repo.ListUsers(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Address", "Role", "Name"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Address, u.Role, u.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (plaintext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, plaintext, err := a.Engine.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				fmt.Printf("API key (save it now, only the hash is stored): %s\n", plaintext)
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func ledgerCmd() *cobra.Command {
	led := &cobra.Command{Use: "ledger", Short: "Inspect the commitment ledger"}
	led.AddCommand(ledgerBalanceCmd())
	led.AddCommand(ledgerConstantsCmd())
	led.AddCommand(ledgerHasRoleCmd())
	led.AddCommand(ledgerHasCommitmentCmd())
	led.AddCommand(ledgerCommitCmd())
	led.AddCommand(ledgerCommitBatchCmd())
	return led
}

func ledgerCommitCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "commit <hash>",
		Short: "Anchor a raw hash directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				acct := account
				if acct == "" {
					acct = a.Config.Ledger.Account
				}
				ref, err := a.Ledger.Commit(ctx, args[0], acct)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"hash": args[0], "tx_ref": ref})
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "signing account (defaults to config)")
	return cmd
}

func ledgerCommitBatchCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "commit-batch <hash>...",
		Short: "Anchor up to the batch ceiling of raw hashes atomically",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				acct := account
				if acct == "" {
					acct = a.Config.Ledger.Account
				}
				ref, err := a.Ledger.CommitBatch(ctx, args, acct)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"hashes": args, "tx_ref": ref})
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "signing account (defaults to config)")
	return cmd
}

func ledgerBalanceCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an account balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				acct := account
				if acct == "" {
					acct = a.Config.Ledger.Account
				}
				balance, err := a.Ledger.Balance(ctx, acct)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"account": acct, "balance": balance})
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account address (defaults to the signing account)")
	return cmd
}

func ledgerConstantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "constants",
		Short: "Show the contract constants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				consts, err := a.Ledger.Constants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(consts)
			})
		},
	}
	return cmd
}

func ledgerHasRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "has-role <address>...",
		Short: "Check store-role membership for addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				flags, err := a.Ledger.HasRole(ctx, args)
				if err != nil {
					return err
				}
				out := map[string]bool{}
				for i, addr := range args {
					out[addr] = flags[i]
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func ledgerHasCommitmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "has-commitment <hash>",
		Short: "Check whether a hash is anchored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				anchored, err := a.Ledger.HasCommitment(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"hash": args[0], "anchored": anchored})
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("TASKANCHOR_JWT_SECRET"),
				AllowAnonymous: allowAnonymous,
			}
			if authCfg.JWTSecret == "" && !allowAnonymous {
				return fmt.Errorf("TASKANCHOR_JWT_SECRET is required unless --allow-anonymous is set")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Roles:    a.Roles,
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving TaskAnchor API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "allow unauthenticated requests (development only)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func buildProofs(texts, images []string) []engine.ProofInput {
	var proofs []engine.ProofInput
	for _, v := range texts {
		proofs = append(proofs, engine.ProofInput{Type: domain.ProofText, Value: v})
	}
	for _, v := range images {
		proofs = append(proofs, engine.ProofInput{Type: domain.ProofImage, Value: v})
	}
	return proofs
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12] + "…"
}
