package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/platinummonkey/storeadmin/pkg/database"
	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/platinummonkey/storeadmin/pkg/rbac"
	"github.com/platinummonkey/storeadmin/pkg/snapshot"
)

// dbFlags registers the connection flags every command shares
type dbFlags struct {
	driver *string
	dsn    *string
}

func addDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		driver: fs.String("db-driver", "", "Database driver: postgres or sqlite3 (default $STOREADMIN_DB_DRIVER or postgres)"),
		dsn:    fs.String("db-dsn", "", "Database DSN (default $STOREADMIN_DB_DSN)"),
	}
}

// session is an open database with an RBAC manager over it
type session struct {
	db      *sql.DB
	manager *rbac.Manager
	audit   *audit.DBLogger
}

func (s *session) Close() error {
	return s.db.Close()
}

func (f dbFlags) open(ctx context.Context, env *Env, catalog *rbac.Catalog) (*session, error) {
	driver := firstNonEmpty(*f.driver, env.Getenv("STOREADMIN_DB_DRIVER"), "postgres")
	dsn := firstNonEmpty(*f.dsn, env.Getenv("STOREADMIN_DB_DSN"))
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required (-db-dsn or STOREADMIN_DB_DSN)")
	}

	db, err := database.Open(ctx, database.Config{Driver: driver, DSN: dsn, Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	auditLog, err := audit.NewDBLogger(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg := rbac.Config{
		Options: rbac.Options{
			Cache:  rbac.NoCache(),
			Audit:  auditLog,
			Logger: observability.NewLogger(observability.WarnLevel, os.Stderr),
		},
		Catalog: rbac.DefaultCatalog(),
	}
	if catalog != nil {
		cfg.Catalog = *catalog
	}
	return &session{db: db, manager: rbac.NewManager(db, cfg), audit: auditLog}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newMigrateCommand() *Command {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	db := addDBFlags(fs)
	return &Command{
		Name:        "migrate",
		Description: "Apply RBAC schema migrations",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			s, err := db.open(ctx, env, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := rbac.RunMigrations(ctx, s.db, nil); err != nil {
				return err
			}
			env.Log.Info("migrations applied")
			return nil
		},
	}
}

func newSeedCommand() *Command {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	db := addDBFlags(fs)
	catalogFile := fs.String("catalog", "", "YAML permission catalog (default built-in catalog)")
	admin := fs.String("admin", "", "User id to give the system role")
	email := fs.String("email", "", "Email for the admin user")
	return &Command{
		Name:        "seed",
		Description: "Install the permission catalog and system role",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}

			var catalog *rbac.Catalog
			if *catalogFile != "" {
				c, err := rbac.LoadCatalog(*catalogFile)
				if err != nil {
					return err
				}
				catalog = &c
			}

			s, err := db.open(ctx, env, catalog)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.manager.Initialize(ctx)
			if err != nil {
				return err
			}
			env.Log.WithField("permissions_created", result.PermissionsCreated).
				WithField("system_role_created", result.SystemRoleCreated).
				WithField("grants_added", result.GrantsAdded).
				Info("catalog installed")

			if *admin != "" {
				if _, err := s.manager.AssignSystemRole(ctx, *admin, *email); err != nil {
					return err
				}
				env.Log.WithField("user_id", *admin).Info("system role assigned")
			}
			return nil
		},
	}
}

func newRolesCommand() *Command {
	fs := flag.NewFlagSet("roles", flag.ContinueOnError)
	db := addDBFlags(fs)
	return &Command{
		Name:        "roles",
		Description: "List roles and their grants",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			s, err := db.open(ctx, env, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			roles, err := s.manager.Roles().List(ctx)
			if err != nil {
				return err
			}
			return printRoles(env.Out, roles)
		},
	}
}

func printRoles(w io.Writer, roles []rbac.Role) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tACTIVE\tSYSTEM\tGRANTS")
	for _, r := range roles {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\n", r.Slug, r.Name, r.IsActive, r.IsSystem, len(r.Grants))
	}
	return tw.Flush()
}

func newCheckCommand() *Command {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	db := addDBFlags(fs)
	user := fs.String("user", "", "Admin user id")
	permission := fs.String("permission", "", "Permission slug")
	action := fs.String("action", "view", "Action: view, create, update, delete or manage")
	return &Command{
		Name:        "check",
		Description: "Explain an authorization decision",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *user == "" || *permission == "" {
				return fmt.Errorf("-user and -permission are required")
			}
			a, err := rbac.ParseAction(*action)
			if err != nil {
				return err
			}

			s, err := db.open(ctx, env, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			actor, err := s.manager.Directory().ResolveActor(ctx, *user)
			if errors.Is(err, rbac.ErrNotFound) {
				fmt.Fprintf(env.Out, "denied: %s is not an admin user\n", *user)
				return nil
			}
			if err != nil {
				return err
			}

			decision, err := s.manager.Resolver().Check(ctx, actor, *permission, a)
			if err != nil {
				return err
			}
			verdict := "denied"
			if decision.Allowed {
				verdict = "allowed"
			}
			fmt.Fprintf(env.Out, "%s: %s\n", verdict, decision.Reason)
			return nil
		},
	}
}

func newExportCommand() *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	db := addDBFlags(fs)
	out := fs.String("out", "", "Write the snapshot to this file instead of stdout")
	bucket := fs.String("bucket", "", "Upload the snapshot to this S3 bucket")
	region := fs.String("region", "us-east-1", "S3 region")
	endpoint := fs.String("endpoint", "", "S3 endpoint override (MinIO)")
	prefix := fs.String("prefix", "rbac-snapshots", "S3 key prefix")
	pathStyle := fs.Bool("path-style", false, "Use path-style S3 addressing")
	return &Command{
		Name:        "export",
		Description: "Write a snapshot of permissions, roles and sidebar order",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			s, err := db.open(ctx, env, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			m := s.manager
			if *bucket != "" {
				uploader, err := snapshot.NewS3Uploader(ctx, snapshot.S3Config{
					Bucket:       *bucket,
					Region:       *region,
					Endpoint:     *endpoint,
					UsePathStyle: *pathStyle,
					AccessKey:    env.Getenv("STOREADMIN_EXPORT_ACCESS_KEY"),
					SecretKey:    env.Getenv("STOREADMIN_EXPORT_SECRET_KEY"),
				})
				if err != nil {
					return err
				}
				exporter := snapshot.NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), uploader, snapshot.Options{KeyPrefix: *prefix})
				key, err := exporter.Export(ctx)
				if err != nil {
					return err
				}
				env.Log.WithField("bucket", *bucket).WithField("key", key).Info("snapshot uploaded")
				return nil
			}

			exporter := snapshot.NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), nil, snapshot.Options{})
			if *out == "" {
				return exporter.Write(ctx, env.Out)
			}
			f, err := os.Create(*out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", *out, err)
			}
			if err := exporter.Write(ctx, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			env.Log.WithField("file", *out).Info("snapshot written")
			return nil
		},
	}
}

func newAuditCommand() *Command {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	db := addDBFlags(fs)
	limit := fs.Int("limit", 20, "Number of events to show")
	return &Command{
		Name:        "audit",
		Description: "Show recent audit events",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			s, err := db.open(ctx, env, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.audit.Recent(ctx, *limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tSTATUS\tUSER\tRESOURCE\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s/%s\t%s\n",
					e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.Status, e.UserID,
					e.ResourceType, e.ResourceID, e.Message)
			}
			return tw.Flush()
		},
	}
}
