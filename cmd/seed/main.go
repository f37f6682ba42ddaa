package main

import (
	"context"
	"fmt"
	"krysselista/auth"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/internal"
	"krysselista/repositories"
	"os"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// demo viewers and their children, enough to click through every thread type
var (
	viewers = []domain.Viewer{
		{ID: "staff-kari", Name: "Kari Nordmann", Email: "kari@barnehage.no", Role: domain.RoleStaff},
		{ID: "guardian-anne", Name: "Anne Hansen", Email: "anne@example.no", Role: domain.RoleGuardian},
		{ID: "guardian-jonas", Name: "Jonas Berg", Email: "jonas@example.no", Role: domain.RoleGuardian},
	}
	subjects = []domain.Subject{
		{Name: "Ola Hansen", Department: domain.Storbarna, GuardianIDs: []string{"guardian-anne"}, Allergies: "Nøtter"},
		{Name: "Ida Hansen", Department: domain.Smabarna, GuardianIDs: []string{"guardian-anne"}},
		{Name: "Emil Berg", Department: domain.Mellombarna, GuardianIDs: []string{"guardian-jonas"}, Notes: "Hentes av bestemor på fredager"},
		{Name: "Sara Berg", Department: domain.Storbarna, GuardianIDs: []string{"guardian-jonas"}},
	}
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if config.StoreBackend == internal.BackendMemory {
		return fmt.Errorf("nothing to seed: the %s backend does not outlive this process", internal.BackendMemory)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	store, err := internal.OpenStore(ctx, config, log)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, s := range subjects {
		id, err := store.Client.Append(ctx, collection.Subjects, repositories.EncodeSubject(s))
		if err != nil {
			return fmt.Errorf("cannot seed %s: %w", s.Name, err)
		}
		fmt.Printf("Seeded %s (%s) as %s\n", s.Name, s.Department, id)
	}

	tokens := auth.NewTokens(config.JWTSigningKey, config.JWTIssuer, config.AuthTokenDuration)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Viewer", "Role", "Bearer token"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, v := range viewers {
		token, err := tokens.Issue(v)
		if err != nil {
			return fmt.Errorf("cannot issue token for %s: %w", v.ID, err)
		}
		table.Append([]string{v.Name, string(v.Role), token})
	}
	table.Render()
	return nil
}
