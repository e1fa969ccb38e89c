package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <seed-org|rls-smoke> [args]")
	}

	switch os.Args[1] {
	case "seed-org":
		seedOrg(os.Args[2:])
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// seedOrg provisions an organization, its hostname mapping, and an admin
// principal so a fresh deployment has someone who can log in.
func seedOrg(args []string) {
	fs := flag.NewFlagSet("seed-org", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		url        string
		name       string
		hostname   string
		adminUser  string
		adminEmail string
	)
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&name, "name", "", "organization name")
	fs.StringVar(&hostname, "hostname", "", "organization hostname")
	fs.StringVar(&adminUser, "admin-user-id", "", "auth user id of the first admin")
	fs.StringVar(&adminEmail, "admin-email", "", "email of the first admin")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" || name == "" || hostname == "" || adminUser == "" || adminEmail == "" {
		fatalf("missing --url, --name, --hostname, --admin-user-id, or --admin-email")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	orgID, err := uuidv7.NewString()
	if err != nil {
		fatal(err)
	}
	principalID, err := uuidv7.NewString()
	if err != nil {
		fatal(err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO iam.orgs (id, name) VALUES ($1::uuid, $2)
`, orgID, name); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO iam.org_domains (hostname, org_id) VALUES ($1, $2::uuid)
`, hostname, orgID); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO iam.principals (id, user_id, org_id, role, email, status)
VALUES ($1::uuid, $2::uuid, $3::uuid, 'admin', $4, 'active')
ON CONFLICT (user_id) DO UPDATE SET org_id = EXCLUDED.org_id, role = 'admin', email = EXCLUDED.email
`, principalID, adminUser, orgID, adminEmail); err != nil {
		fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}

	fmt.Printf("org %s (%s) seeded with admin %s\n", name, orgID, adminEmail)
}

// rlsSmoke verifies that row-level security actually scopes rows by
// app.current_org before anything else trusts it.
func rlsSmoke(args []string) {
	fs := flag.NewFlagSet("rls-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE rls_smoke (org_id uuid NOT NULL, val text NOT NULL);`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke ENABLE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke FORCE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
CREATE POLICY org_isolation ON rls_smoke
USING (org_id = school.current_org_id())
WITH CHECK (org_id = school.current_org_id());`); err != nil {
		fatal(err)
	}

	orgA, err := uuidv7.NewString()
	if err != nil {
		fatal(err)
	}
	orgB, err := uuidv7.NewString()
	if err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', $1, true)`, orgA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rls_smoke (org_id, val) VALUES ($1::uuid, 'a')`, orgA); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', $1, true)`, orgB); err != nil {
		fatal(err)
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke`).Scan(&n); err != nil {
		fatal(err)
	}
	if n != 0 {
		fatalf("rls smoke failed: org B sees %d rows of org A", n)
	}

	fmt.Println("rls smoke ok")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "dbtool:", err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "dbtool: "+format+"\n", args...)
	os.Exit(1)
}
