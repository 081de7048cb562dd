package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/grocerybid-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestLedgerMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_users.sql": {
			"wallet_balance numeric(14,2) NOT NULL DEFAULT 0",
			"users_referral_code_key ON users (referral_code)",
			"referred_by uuid NULL REFERENCES users(id)",
			"CHECK (referral_rewards >= 0)",
			"CHECK (referred_by IS NULL OR referred_by <> id)",
		},
		"*_create_grocery_lists.sql": {
			"CHECK (quantity > 0)",
		},
		"*_create_quotations.sql": {
			"quotations_one_accepted_per_list ON quotations (list_id) WHERE status = 'accepted'",
			"CHECK (discount >= 0 AND discount <= 100)",
			"base_price numeric(14,4) NOT NULL",
			"discount numeric(6,3) NOT NULL DEFAULT 0",
			"final_price numeric(14,4) NOT NULL",
		},
		"*_create_orders.sql": {
			"CONSTRAINT orders_quotation_id_key UNIQUE (quotation_id)",
			"DROP TABLE IF EXISTS orders",
		},
		"*_create_transactions.sql": {
			"transactions_gateway_order_id_key ON transactions (gateway_order_id) WHERE gateway_order_id IS NOT NULL",
			"status transaction_status_enum NOT NULL DEFAULT 'pending'",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}

		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", matches[0], sub)
			}
		}
	}
}

// Royalty deductions may overdraw a vendor and ledger rows are unsigned by
// type, so neither column may gain a CHECK.
func TestBalanceAndLedgerAmountsStayUnconstrained(t *testing.T) {
	for pattern, forbidden := range map[string]string{
		"*_create_users.sql":        "CHECK (wallet_balance",
		"*_create_transactions.sql": "CHECK (amount",
	} {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil || len(matches) != 1 {
			t.Fatalf("glob %s: %v %v", pattern, matches, err)
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		if strings.Contains(string(data), forbidden) {
			t.Errorf("%s must not contain %q", matches[0], forbidden)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Wallet Holds!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_wallet_holds.sql") {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	ok := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\nSELECT 1;\n"
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":         {Data: []byte(ok)},
		"20260101000000_clash.sql":      {Data: []byte(ok)},
		"wallets.sql":                   {Data: []byte(ok)},
		"20261399000000_bad_month.sql":  {Data: []byte(ok)},
		"20260102000000_no_down.sql":    {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"20260103000000_unbalanced.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		"README.md":                     {Data: []byte("ignored")},
	}

	err := migrate.ValidateFS(fsys)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"version 20260101000000 already used",
		"wallets.sql: expected YYYYMMDDHHMMSS_name.sql",
		"bad_month.sql: version is not a timestamp",
		"no_down.sql: missing -- +goose Down",
		"unbalanced.sql: 1 StatementBegin vs 0 StatementEnd",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestCreateSQLMigrationRejectsUnusableNames(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), " !! "); err == nil {
		t.Fatal("expected error for a name with no usable characters")
	}
	if _, err := migrate.CreateSQLMigration("", "wallet_holds"); err == nil {
		t.Fatal("expected error without a dir")
	}
}

func TestNewRunnerRequiresDatabase(t *testing.T) {
	if _, err := migrate.NewRunner(nil, "", nil); err == nil {
		t.Fatal("expected error without a database handle")
	}
}
