package main

import (
	"flag"
	"fmt"
	"krysselista/collection"
	"krysselista/infrastructure/storage"
	"krysselista/repositories"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	// INSPECT_VIEWER highlights the messages this viewer has not read yet
	Viewer  string `envconfig:"INSPECT_VIEWER"`
	Colours bool   `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.BadgerFilepath == "" {
		config.BadgerFilepath = database.DefaultPath
	}
	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	name := flag.String("collection", string(collection.Messages), "Collection to list: children, messages or logs")
	viewer := flag.String("viewer", config.Viewer, "Highlight messages unread by this viewer id")
	flag.Parse()
	color.Enable = config.Colours

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	client := storage.NewBadgerClient(db, logs.GetLoggerFromLevel(slog.LevelWarn), time.Now)
	defer client.Close()
	snapshot, err := client.Snapshot(collection.Name(*name))
	if err != nil {
		log.Fatal(err)
	}

	table := newTable()
	switch collection.Name(*name) {
	case collection.Subjects:
		subjectRows(table, snapshot)
	case collection.Messages:
		messageRows(table, snapshot, *viewer)
	case collection.AttendanceLog:
		attendanceRows(table, snapshot)
	default:
		log.Fatalf("unknown collection %q", *name)
	}
	table.Render()
	fmt.Printf("%s: %d records, version %d\n", snapshot.Name, len(snapshot.Records), snapshot.Version)
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func subjectRows(table *tablewriter.Table, snapshot collection.Snapshot) {
	table.SetHeader([]string{"ID", "Name", "Department", "Status", "Last change", "Guardians"})
	for _, r := range snapshot.Records {
		s, err := repositories.DecodeSubject(r)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", r.ID, err)
			continue
		}
		status, last := color.Gray.Render("out"), s.LastCheckOut
		if s.CheckedIn {
			status, last = color.Green.Render("in"), s.LastCheckIn
		}
		table.Append([]string{short(s.ID), s.Name, string(s.Department), status, clock(last), strings.Join(s.GuardianIDs, ",")})
	}
}

func messageRows(table *tablewriter.Table, snapshot collection.Snapshot, viewer string) {
	table.SetHeader([]string{"Seq", "Sent", "Thread", "From", "Text", "Read by"})
	for _, r := range snapshot.Records {
		m, err := repositories.DecodeMessage(r)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", r.ID, err)
			continue
		}
		text := m.Body
		if len(text) > 40 {
			text = text[:40] + "…"
		}
		if viewer != "" && !slices.Contains(m.ReadBy, viewer) {
			text = color.New(color.BgBlack, color.FgYellow).Render(text)
		}
		table.Append([]string{
			fmt.Sprintf("%d", m.Seq),
			m.SentAt.Local().Format("02.01 15:04:05"),
			m.Ref().Key().String(),
			fmt.Sprintf("%s (%s)", m.SenderName, m.SenderRole),
			text,
			fmt.Sprintf("%d", len(m.ReadBy)),
		})
	}
}

func attendanceRows(table *tablewriter.Table, snapshot collection.Snapshot) {
	table.SetHeader([]string{"Seq", "Time", "Subject", "Action", "By"})
	for _, r := range snapshot.Records {
		e, err := repositories.DecodeAttendanceEvent(r)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", r.ID, err)
			continue
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.Seq),
			e.Timestamp.Local().Format("02.01 15:04:05"),
			short(e.SubjectID),
			string(e.Action),
			e.PerformedByLabel,
		})
	}
}

// short keeps the first 8 characters of an id for readability.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clock(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("02.01 15:04")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
