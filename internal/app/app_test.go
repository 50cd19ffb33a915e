package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
	"github.com/bobmcallan/mfdesk/internal/storage/memory"
)

// writeTestConfig creates a minimal mfdesk.toml in a temp directory.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	for _, name := range []string{"GEMINI_API_KEY", "MFDESK_GEMINI_API_KEY", "GOOGLE_API_KEY", "MFDESK_CONFIG", "MFDESK_CHAT_PROVIDER", "MFDESK_STORAGE_BACKEND"} {
		t.Setenv(name, "")
	}

	config := `
[logging]
level = "disabled"

[optimizer]
command = ["/bin/cat"]

[chat]
knowledge_dir = "` + filepath.Join(dir, "knowledge") + `"
` + extra
	configPath := filepath.Join(dir, "mfdesk.toml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestNewApp_InitializesAllServices(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.Config == nil {
		t.Error("Config is nil")
	}
	if a.Logger == nil {
		t.Error("Logger is nil")
	}
	if a.Storage == nil {
		t.Error("Storage is nil")
	}
	if a.AuthService == nil {
		t.Error("AuthService is nil")
	}
	if a.PortfolioService == nil {
		t.Error("PortfolioService is nil")
	}
	if a.OptimizerService == nil {
		t.Error("OptimizerService is nil")
	}
	if a.ChatService == nil {
		t.Error("ChatService is nil")
	}
	if a.OptimizerPool == nil {
		t.Error("OptimizerPool is nil")
	}
	if a.ChatPool != nil {
		t.Error("ChatPool should be nil for the knowledge provider")
	}
	if a.GeminiClient != nil {
		t.Error("GeminiClient should be nil without an API key")
	}
	if a.StartupTime.IsZero() {
		t.Error("StartupTime is zero")
	}
}

func TestNewApp_ProcessChatProvider(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t, `
provider = "process"

[chat.process]
command = ["/bin/cat"]
`))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.ChatPool == nil {
		t.Fatal("ChatPool is nil for the process provider")
	}
}

func TestNewApp_InvalidConfigReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mfdesk.toml")
	if err := os.WriteFile(path, []byte("this is [not valid toml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewApp(context.Background(), path); err == nil {
		t.Error("expected error for invalid TOML")
	}

	config := common.NewDefaultConfig()
	config.Storage.Backend = "postgres"
	if _, err := NewAppWithConfig(context.Background(), config, WithLogger(common.NewSilentLogger())); err == nil {
		t.Error("expected error for unknown storage backend")
	}
}

func TestNewApp_CloseIsIdempotent(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	a.StartSessionSweeper()
	a.Close()
	a.Close()
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("explicit.toml"); got != "explicit.toml" {
		t.Errorf("explicit path = %q", got)
	}

	t.Setenv("MFDESK_CONFIG", "/etc/mfdesk/mfdesk.toml")
	if got := ResolveConfigPath(""); got != "/etc/mfdesk/mfdesk.toml" {
		t.Errorf("env path = %q", got)
	}

	t.Setenv("MFDESK_CONFIG", "")
	if got := ResolveConfigPath(""); got == "" {
		t.Error("fallback path is empty")
	}
}

func TestSeed_LoadsFixtures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

	if err := Seed(ctx, store, common.NewSilentLogger(), now); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	user, err := store.GetUserByUsername(ctx, SeedUsername)
	if err != nil {
		t.Fatalf("seed user missing: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("seed user id = %d, want 1", user.ID)
	}

	clients, err := store.ListClients(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 || clients[0].PanNumber != "ABCDE1234F" || clients[1].PanNumber != "FGHIJ5678K" {
		t.Fatalf("unexpected seed clients: %+v", clients)
	}

	funds, err := store.ListFunds(ctx, clients[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(funds) != 2 {
		t.Fatalf("Rahul has %d funds, want 2", len(funds))
	}
	// 2000 bought, 500 sold at average cost 70
	sbi := funds[1]
	if sbi.Units.IntPart() != 1500 {
		t.Errorf("SBI units = %s, want 1500", sbi.Units)
	}
	if sbi.InvestedAmount.IntPart() != 105000 {
		t.Errorf("SBI invested = %s, want 105000", sbi.InvestedAmount)
	}

	commissions, err := store.ListCommissions(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, c := range commissions {
		total += c.Amount.InexactFloat64()
	}
	if total != 6340 {
		t.Errorf("total commission = %.2f, want 6340", total)
	}

	goals, err := store.ListGoals(ctx, clients[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 || goals[0].TargetYear != 2044 {
		t.Errorf("unexpected seed goals: %+v", goals)
	}
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	logger := common.NewSilentLogger()

	for i := 0; i < 2; i++ {
		if err := Seed(ctx, store, logger, time.Now()); err != nil {
			t.Fatalf("Seed #%d failed: %v", i+1, err)
		}
	}

	user, _ := store.GetUserByUsername(ctx, SeedUsername)
	clients, _ := store.ListClients(ctx, user.ID)
	if len(clients) != 2 {
		t.Errorf("clients after reseed = %d, want 2", len(clients))
	}
}

func TestSeed_PasswordIsHashed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	if err := Seed(ctx, store, common.NewSilentLogger(), time.Now()); err != nil {
		t.Fatal(err)
	}

	user, _ := store.GetUserByUsername(ctx, SeedUsername)
	if user.PasswordHash == SeedPassword || user.PasswordHash == "" {
		t.Errorf("seed password stored in clear: %q", user.PasswordHash)
	}
}

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepExpired(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 1, nil
}

func TestSessionSweeper_RunsUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		startSessionSweeper(ctx, sweeper, common.NewSilentLogger(), 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sweeper.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// Seed clients pass the same validation as API input.
func TestSeedClients_AreValid(t *testing.T) {
	for _, sc := range seedClients() {
		age, risk := sc.age, sc.riskAppetite
		in := models.NewClientInput{
			Name:         sc.name,
			Age:          &age,
			PanNumber:    sc.pan,
			RiskAppetite: &risk,
			Profession:   sc.profession,
			Email:        sc.email,
			Phone:        sc.phone,
		}
		if err := in.Validate(); err != nil {
			t.Errorf("seed client %s invalid: %v", sc.name, err)
		}
		for _, g := range sc.goals {
			if err := g.Validate(); err != nil {
				t.Errorf("seed goal %s invalid: %v", g.GoalName, err)
			}
		}
	}
}
