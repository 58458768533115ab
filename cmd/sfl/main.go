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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"safeline/internal/config"
	"safeline/internal/db"
	"safeline/internal/domain"
	"safeline/internal/eightd"
	"safeline/internal/migrate"
	"safeline/internal/permit"
	"safeline/internal/repo"
	"safeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sfl",
	Short: "Safeline CLI",
	Long: `Safeline tracks industrial safety incidents, 8D problem-solving
processes, and permits to work.
Core concepts:
- Workspace: your .safeline directory holding only the database; rules live
  in safeline.yml next to it.
- Incidents: safety events reported on site; they get an investigator and
  flow open -> investigating -> resolved -> closed.
- 8D processes: team-based problem solving in eight disciplines (D1 team,
  D2 problem, D3 containment, D4 root cause, D5/D6 corrective actions,
  D7 prevention, D8 recognition). Disciplines complete strictly in order.
- Permits: permits to work that flow draft -> submitted -> verified ->
  approved -> active -> completed -> closed. Who may verify or approve is
  decided by org type and grade dominance tables in safeline.yml.
- Event log: diary of changes, view with 'sfl log tail'.`,
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
	viper.SetEnvPrefix("SAFELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(incidentCmd())
	rootCmd.AddCommand(eightdCmd())
	rootCmd.AddCommand(permitCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "Config is the rulebook (safeline.yml): permit numbering, validity windows, and the verify/approve dominance tables keyed by org type and grade.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default safeline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate safeline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- users ---

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Users carry an org type (contractor, epc, client) and grade (A, B, C). Together those decide which permits they can verify or approve.",
	}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userGetCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var u domain.User
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if u.ID == "" {
					u.ID = uuid.NewString()
				}
				u.IsActive = true
				u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id (optional)")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.OrgType, "org-type", "", "org type (contractor, epc, client)")
	cmd.Flags().StringVar(&u.Grade, "grade", "", "grade (A, B, C)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("org-type")
	_ = cmd.MarkFlagRequired("grade")
	return cmd
}

func userListCmd() *cobra.Command {
	var orgType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx, orgType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Org", "Grade", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.OrgType, u.Grade, u.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgType, "org-type", "", "org type filter")
	return cmd
}

func userGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := r.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				rawKey := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(rawKey),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":      key.ID,
					"user_id": key.UserID,
					"name":    key.Name,
					"key":     rawKey,
				})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "key owner (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "key owner (defaults to --actor-id)")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- incidents ---

func incidentCmd() *cobra.Command {
	inc := &cobra.Command{
		Use:   "incident",
		Short: "Manage incidents",
		Long:  "Incidents are safety events reported on site. Assigning an investigator moves an incident to investigating and makes it eligible for an 8D process.",
	}
	inc.AddCommand(incidentReportCmd())
	inc.AddCommand(incidentListCmd())
	inc.AddCommand(incidentShowCmd())
	inc.AddCommand(incidentAssignCmd())
	inc.AddCommand(incidentStatusCmd())
	return inc
}

func incidentReportCmd() *cobra.Command {
	var opts eightd.IncidentOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report an incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				in, err := e.ReportIncident(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "short title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what happened")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.OccurredAt, "occurred-at", "", "occurrence time (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func incidentListCmd() *cobra.Command {
	var f repo.IncidentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListIncidents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Severity", "Status", "Investigator"})
				for _, in := range items {
					investigator := ""
					if in.AssignedInvestigator != nil {
						investigator = *in.AssignedInvestigator
					}
					tw.AppendRow(table.Row{in.ID, in.Title, in.Severity, in.Status, investigator})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Severity, "severity", "", "severity filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func incidentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				in, err := r.GetIncident(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	return cmd
}

func incidentAssignCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign an investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				in, err := e.AssignInvestigator(ctx, args[0], userID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "investigator user id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func incidentStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update incident status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				in, err := e.SetIncidentStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// --- 8D ---

func eightdCmd() *cobra.Command {
	ed := &cobra.Command{
		Use:   "eightd",
		Short: "Manage 8D processes",
		Long:  "8D processes solve an incident with a team through eight disciplines. Only the champion advances the process, and each discipline has completion criteria (team in place, problem described, containment on record, and so on).",
	}
	ed.AddCommand(eightdInitCmd())
	ed.AddCommand(eightdListCmd())
	ed.AddCommand(eightdShowCmd())
	ed.AddCommand(eightdAdvanceCmd())
	ed.AddCommand(eightdTeamCmd())
	ed.AddCommand(eightdProblemCmd())
	ed.AddCommand(eightdContainmentCmd())
	ed.AddCommand(eightdRootCauseCmd())
	ed.AddCommand(eightdActionCmd())
	ed.AddCommand(eightdPreventionCmd())
	return ed
}

func eightdInitCmd() *cobra.Command {
	var opts eightd.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start an 8D process for an incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if opts.ChampionID == "" {
				opts.ChampionID = opts.ActorID
			}
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				p, err := e.InitProcess(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.IncidentID, "incident", "", "incident id")
	cmd.Flags().StringVar(&opts.ProblemStatement, "problem", "", "problem statement")
	cmd.Flags().StringVar(&opts.ChampionID, "champion", "", "champion user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&opts.TargetCompletionDate, "target-date", "", "target completion date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("incident")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

func eightdListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List 8D processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProcesses(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "8D", "Incident", "Discipline", "Status", "Progress"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.EightDID, p.IncidentID, fmt.Sprintf("D%d", p.CurrentDiscipline), p.Status, fmt.Sprintf("%d%%", p.OverallProgress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, completed)")
	return cmd
}

func eightdShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an 8D process with discipline progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProcess(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s  incident=%s  champion=%s  %s (%d%%)\n", p.EightDID, p.IncidentID, p.ChampionID, p.Status, p.OverallProgress)
				for n := 1; n <= eightd.FinalDiscipline; n++ {
					marker := " "
					switch eightd.StepStatus(p, n) {
					case "finish":
						marker = "x"
					case "process":
						marker = ">"
					}
					fmt.Printf("  [%s] D%d %s\n", marker, n, disciplineNames[n-1])
				}
				return nil
			})
		},
	}
	return cmd
}

var disciplineNames = [...]string{
	"Establish the team",
	"Describe the problem",
	"Contain the problem",
	"Identify root causes",
	"Choose corrective actions",
	"Implement corrective actions",
	"Prevent recurrence",
	"Recognize the team",
}

func eightdAdvanceCmd() *cobra.Command {
	var discipline int
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Complete the current discipline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				p, err := e.Advance(ctx, args[0], discipline, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().IntVar(&discipline, "discipline", 0, "discipline number to complete (must be the current one)")
	_ = cmd.MarkFlagRequired("discipline")
	return cmd
}

func eightdTeamCmd() *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Manage the 8D team",
	}
	team.AddCommand(eightdTeamAddCmd())
	team.AddCommand(eightdTeamListCmd())
	team.AddCommand(eightdTeamRemoveCmd())
	team.AddCommand(eightdTeamRecognizeCmd())
	return team
}

func eightdTeamAddCmd() *cobra.Command {
	var opts eightd.AddMemberOptions
	cmd := &cobra.Command{
		Use:   "add <process-id>",
		Short: "Add a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProcessID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				m, err := e.AddTeamMember(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "user to enroll")
	cmd.Flags().StringVar(&opts.Role, "role", "", "team role")
	cmd.Flags().StringVar(&opts.ExpertiseArea, "expertise", "", "expertise area")
	cmd.Flags().StringVar(&opts.Responsibilities, "responsibilities", "", "responsibilities")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func eightdTeamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <process-id>",
		Short: "List team members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				members, err := r.ListTeamMembers(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(members)
			})
		},
	}
	return cmd
}

func eightdTeamRemoveCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "remove <process-id>",
		Short: "Deactivate a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				return e.RemoveTeamMember(ctx, args[0], memberID, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member-id", "", "team member id")
	_ = cmd.MarkFlagRequired("member-id")
	return cmd
}

func eightdTeamRecognizeCmd() *cobra.Command {
	var memberID, notes string
	cmd := &cobra.Command{
		Use:   "recognize <process-id>",
		Short: "Recognize a team member (D8)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				m, err := e.RecognizeMember(ctx, args[0], memberID, notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member-id", "", "team member id")
	cmd.Flags().StringVar(&notes, "notes", "", "recognition notes")
	_ = cmd.MarkFlagRequired("member-id")
	return cmd
}

func eightdProblemCmd() *cobra.Command {
	var in eightd.ProblemInput
	cmd := &cobra.Command{
		Use:   "problem <process-id>",
		Short: "Set the 5W2H problem description (D2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				d, err := e.SetProblemDescription(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&in.What, "what", "", "what is the problem")
	cmd.Flags().StringVar(&in.Where, "where", "", "where observed")
	cmd.Flags().StringVar(&in.When, "when", "", "when observed")
	cmd.Flags().StringVar(&in.Who, "who", "", "who is affected")
	cmd.Flags().StringVar(&in.HowMany, "how-many", "", "magnitude")
	cmd.Flags().StringVar(&in.Impact, "impact", "", "impact")
	_ = cmd.MarkFlagRequired("what")
	return cmd
}

func eightdContainmentCmd() *cobra.Command {
	var description, responsible string
	cmd := &cobra.Command{
		Use:   "containment <process-id>",
		Short: "Record a containment action (D3)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				a, err := e.AddContainmentAction(ctx, args[0], description, responsible, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "containment description")
	cmd.Flags().StringVar(&responsible, "responsible", "", "responsible user id (defaults to --actor-id)")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func eightdRootCauseCmd() *cobra.Command {
	rc := &cobra.Command{
		Use:   "root-cause",
		Short: "Manage root causes (D4)",
	}
	rc.AddCommand(eightdRootCauseAddCmd())
	rc.AddCommand(eightdRootCauseVerifyCmd())
	return rc
}

func eightdRootCauseAddCmd() *cobra.Command {
	var in eightd.RootCauseInput
	cmd := &cobra.Command{
		Use:   "add <process-id>",
		Short: "Record a root cause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				rc, err := e.AddRootCause(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rc)
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "root cause description")
	cmd.Flags().StringVar(&in.Category, "category", "", "category (man, machine, method, material, measurement, environment)")
	cmd.Flags().StringVar(&in.AnalysisMethod, "method", "", "analysis method (five_whys, fishbone, fault_tree, other)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func eightdRootCauseVerifyCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "verify <process-id>",
		Short: "Verify a root cause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				rc, err := e.VerifyRootCause(ctx, args[0], id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rc)
			})
		},
	}
	cmd.Flags().StringVar(&id, "root-cause-id", "", "root cause id")
	_ = cmd.MarkFlagRequired("root-cause-id")
	return cmd
}

func eightdActionCmd() *cobra.Command {
	act := &cobra.Command{
		Use:   "action",
		Short: "Manage corrective actions (D5/D6)",
	}
	act.AddCommand(eightdActionAddCmd())
	act.AddCommand(eightdActionImplementCmd())
	return act
}

func eightdActionAddCmd() *cobra.Command {
	var in eightd.CorrectiveInput
	cmd := &cobra.Command{
		Use:   "add <process-id>",
		Short: "Plan a corrective action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				a, err := e.AddCorrectiveAction(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&in.RootCauseID, "root-cause-id", "", "verified root cause id")
	cmd.Flags().StringVar(&in.Description, "description", "", "action description")
	cmd.Flags().StringVar(&in.ActionType, "type", "", "action type")
	cmd.Flags().StringVar(&in.ResponsibleID, "responsible", "", "responsible user id")
	cmd.Flags().StringVar(&in.TargetDate, "target-date", "", "target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.VerificationMethod, "verification", "", "verification method")
	_ = cmd.MarkFlagRequired("root-cause-id")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("responsible")
	return cmd
}

func eightdActionImplementCmd() *cobra.Command {
	var actionID, summary, evidence string
	cmd := &cobra.Command{
		Use:   "implement <process-id>",
		Short: "Record corrective action implementation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				rec, err := e.ImplementCorrectiveAction(ctx, args[0], actionID, summary, evidence, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "corrective action id")
	cmd.Flags().StringVar(&summary, "summary", "", "what was done")
	cmd.Flags().StringVar(&evidence, "evidence", "", "evidence reference")
	_ = cmd.MarkFlagRequired("action-id")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

func eightdPreventionCmd() *cobra.Command {
	prev := &cobra.Command{
		Use:   "prevention",
		Short: "Manage prevention actions (D7)",
	}
	prev.AddCommand(eightdPreventionAddCmd())
	prev.AddCommand(eightdPreventionImplementCmd())
	prev.AddCommand(eightdPreventionVerifyCmd())
	return prev
}

func eightdPreventionAddCmd() *cobra.Command {
	var in eightd.PreventionInput
	cmd := &cobra.Command{
		Use:   "add <process-id>",
		Short: "Plan a prevention action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				a, err := e.AddPreventionAction(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "action description")
	cmd.Flags().StringVar(&in.ActionType, "type", "", "action type")
	cmd.Flags().StringVar(&in.ResponsibleID, "responsible", "", "responsible user id")
	cmd.Flags().StringVar(&in.TargetDate, "target-date", "", "target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.RolloutScope, "scope", "", "rollout scope")
	cmd.Flags().StringVar(&in.SimilarProcesses, "similar", "", "similar processes to cover")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("responsible")
	return cmd
}

func eightdPreventionImplementCmd() *cobra.Command {
	var actionID string
	cmd := &cobra.Command{
		Use:   "implement <process-id>",
		Short: "Mark a prevention action implemented",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				a, err := e.ImplementPreventionAction(ctx, args[0], actionID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "prevention action id")
	_ = cmd.MarkFlagRequired("action-id")
	return cmd
}

func eightdPreventionVerifyCmd() *cobra.Command {
	var actionID, notes string
	var ineffective bool
	cmd := &cobra.Command{
		Use:   "verify <process-id>",
		Short: "Verify prevention effectiveness (incident reporter only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEightD(cmd.Context(), func(ctx context.Context, e eightd.Engine) error {
				a, err := e.VerifyPreventionEffectiveness(ctx, args[0], actionID, !ineffective, notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "prevention action id")
	cmd.Flags().StringVar(&notes, "notes", "", "verification notes")
	cmd.Flags().BoolVar(&ineffective, "ineffective", false, "mark as ineffective")
	_ = cmd.MarkFlagRequired("action-id")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

// --- permits ---

func permitCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "permit",
		Short: "Manage permits to work",
		Long:  "Permits flow draft -> submitted -> under_review -> pending_approval -> approved -> active -> completed -> closed. Verification and approval eligibility comes from the org/grade dominance tables; the first eligible sign-off wins and later ones see a conflict.",
	}
	p.AddCommand(permitCreateCmd())
	p.AddCommand(permitListCmd())
	p.AddCommand(permitShowCmd())
	p.AddCommand(permitAuditCmd())
	p.AddCommand(permitActionCmd("submit", "Submit a draft permit", func(ctx context.Context, e permit.Engine, id, actor string) (domain.Permit, error) {
		return e.Submit(ctx, id, actor)
	}))
	p.AddCommand(permitActionCmd("review", "Take a submitted permit under review", func(ctx context.Context, e permit.Engine, id, actor string) (domain.Permit, error) {
		return e.StartReview(ctx, id, actor)
	}))
	p.AddCommand(permitVerifyCmd())
	p.AddCommand(permitApproveCmd())
	p.AddCommand(permitRejectCmd())
	p.AddCommand(permitActionCmd("start", "Start work on an approved permit", func(ctx context.Context, e permit.Engine, id, actor string) (domain.Permit, error) {
		return e.StartWork(ctx, id, actor)
	}))
	p.AddCommand(permitActionCmd("complete", "Complete work on an active permit", func(ctx context.Context, e permit.Engine, id, actor string) (domain.Permit, error) {
		return e.CompleteWork(ctx, id, actor)
	}))
	p.AddCommand(permitCloseCmd())
	p.AddCommand(permitSuspendCmd())
	p.AddCommand(permitActionCmd("resume", "Resume a suspended permit", func(ctx context.Context, e permit.Engine, id, actor string) (domain.Permit, error) {
		return e.Resume(ctx, id, actor)
	}))
	p.AddCommand(permitCancelCmd())
	p.AddCommand(permitExtendCmd())
	return p
}

func permitCreateCmd() *cobra.Command {
	var opts permit.CreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Draft a permit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.CreatePermit(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "permit title")
	cmd.Flags().StringVar(&opts.WorkDescription, "description", "", "work description")
	cmd.Flags().StringVar(&opts.Location, "location", "", "work location")
	cmd.Flags().StringVar(&opts.PlannedStart, "start", "", "planned start (RFC3339)")
	cmd.Flags().StringVar(&opts.PlannedEnd, "end", "", "planned end (RFC3339, defaults from config)")
	cmd.Flags().StringArrayVar(&opts.Workers, "worker", []string{}, "worker user id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func permitListCmd() *cobra.Command {
	var f repo.PermitFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				permits, err := r.ListPermits(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(permits)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Title", "Status", "Creator", "Planned End"})
				for _, p := range permits {
					tw.AppendRow(table.Row{p.PermitNumber, p.Title, p.Status, p.CreatedBy, p.PlannedEnd})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.CreatedBy, "created-by", "", "creator filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func permitShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetPermit(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func permitAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <id>",
		Short: "Show a permit's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListAudit(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	return cmd
}

// permitActionCmd covers the transitions that need no payload beyond the
// permit id and acting user.
func permitActionCmd(use, short string, fn func(context.Context, permit.Engine, string, string) (domain.Permit, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := fn(ctx, e, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func permitVerifyCmd() *cobra.Command {
	var comment string
	var reject bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a submitted permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.Verify(ctx, args[0], viper.GetString("actor-id"), !reject, comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "verification comment (required when rejecting)")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of passing to approval")
	return cmd
}

func permitApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a verified permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.Approve(ctx, args[0], viper.GetString("actor-id"), comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "approval comment")
	return cmd
}

func permitRejectCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a permit pending approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.Reject(ctx, args[0], viper.GetString("actor-id"), comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "rejection reason")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func permitCloseCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a completed permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.ClosePermit(ctx, args[0], viper.GetString("actor-id"), comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "closing comment")
	return cmd
}

func permitSuspendCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "suspend <id>",
		Short: "Suspend an active permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.Suspend(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why work must stop")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func permitCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a permit before work starts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.Cancel(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func permitExtendCmd() *cobra.Command {
	var newEnd, reason string
	cmd := &cobra.Command{
		Use:   "extend <id>",
		Short: "Extend an active permit's planned end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermits(cmd.Context(), func(ctx context.Context, e permit.Engine) error {
				p, err := e.RequestExtension(ctx, args[0], viper.GetString("actor-id"), newEnd, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&newEnd, "new-end", "", "new planned end (RFC3339)")
	cmd.Flags().StringVar(&reason, "reason", "", "why more time is needed")
	_ = cmd.MarkFlagRequired("new-end")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// --- notifications ---

func notificationCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "notification",
		Short: "View notifications",
	}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotifications(ctx, viper.GetString("actor-id"), unread, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid notification id %q", args[0])
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.MarkNotificationRead(ctx, id)
			})
		},
	}
	return cmd
}

// --- event log ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: incident reports, discipline completions, permit sign-offs, and more.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("SAFELINE_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacyHeader,
			}
			if authCfg.JWTSecret == "" && !allowLegacyHeader {
				return fmt.Errorf("SAFELINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-user-header for local use)")
			}
			handler, err := server.New(server.Config{
				DB:       conn,
				EightD:   eightd.New(conn, cfg),
				Permits:  permit.New(conn, cfg),
				Cfg:      cfg,
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
			fmt.Printf("Serving Safeline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-legacy-user-header", false, "accept X-User-Id without a token (local use only)")
	return cmd
}

// --- helpers ---

func openEngines(ctx context.Context) (*eightd.Engine, *permit.Engine, func(), error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	ed := eightd.New(conn, cfg)
	pm := permit.New(conn, cfg)
	return &ed, &pm, func() { conn.Close() }, nil
}

func withEightD(ctx context.Context, fn func(context.Context, eightd.Engine) error) error {
	ed, _, closeFn, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, *ed)
}

func withPermits(ctx context.Context, fn func(context.Context, permit.Engine) error) error {
	_, pm, closeFn, err := openEngines(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, *pm)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
