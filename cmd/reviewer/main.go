/*
main.go - Reviewer command line

PURPOSE:
  Drives one approval queue from the terminal through the same Board and
  Dispatcher a review screen uses: list a page, approve, reject, bulk act on
  the selection, mark claims as paid.

USAGE:
  reviewer [global flags] <command> [args]

GLOBAL FLAGS:
  -config  YAML config file (client.* and auth.* are read)
  -kind    regularization | reimbursement (default reimbursement)
  -as      employee:role; signs a token locally with auth.jwt_secret.
           Without it, client.token (APPROVALS_TOKEN) is used.

COMMANDS:
  token    -employee ID -role ROLE     print a bearer token
  list     [-status S] [-page N]       one page, resolved for the viewer
  approve  ID [-comment C]
  reject   ID -reason R
  bulk     -action approve|reject [-reason R] [-comment C] [-page N] [ID...]
           no ids: every actionable record on the page
  paid     ID
  notes    ID TEXT
  summary                              counts and claim totals, both queues
  scenario NAME                        load a demo scenario (admin)

EXAMPLES:
  reviewer -as mgr-1:manager -kind regularization list -status pending
  reviewer -as hr-1:hr reject 6f1c... -reason "insufficient documentation"
  reviewer -as admin-1:admin bulk -action approve
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/approval-engine/api"
	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/client"
	"github.com/warp/approval-engine/config"
	"github.com/warp/approval-engine/logging"
	_ "github.com/warp/approval-engine/regularization"
	"github.com/warp/approval-engine/reimbursement"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	kind   approval.Kind
	actor  approval.Actor
	client *client.Client
	out    io.Writer
	logger *zap.Logger
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reviewer", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	kindID := fs.String("kind", reimbursement.Reimbursement.KindID(), "record kind")
	as := fs.String("as", "", "employee:role to sign a token for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "token" {
		return cmdToken(cfg, rest, out)
	}

	kind := approval.LookupKind(*kindID)
	if kind == nil {
		return fmt.Errorf("unknown kind %q (have %s)", *kindID, kindNames())
	}
	logCfg := cfg.Log
	logCfg.Format = "console"
	if logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a := &app{cfg: cfg, kind: kind, out: out, logger: logger}
	token := cfg.Client.Token
	if *as != "" {
		emp, role, ok := strings.Cut(*as, ":")
		if !ok {
			return fmt.Errorf("-as wants employee:role, got %q", *as)
		}
		a.actor = approval.Actor{EmployeeID: approval.EmployeeID(emp), Role: approval.Role(role)}
		if token, err = api.IssueToken(cfg.Auth.JWTSecret, a.actor.EmployeeID, a.actor.Role, cfg.Auth.TokenTTL); err != nil {
			return err
		}
	} else {
		if token == "" {
			return errors.New("no identity: pass -as employee:role or set APPROVALS_TOKEN")
		}
		if a.actor, err = actorFromToken(token); err != nil {
			return err
		}
	}

	opts := []client.Option{client.WithTimeout(cfg.Client.Timeout), client.WithLogger(logger.Named("client"))}
	if cfg.Client.Endpoints != "" {
		eps, err := client.LoadEndpoints(cfg.Client.Endpoints)
		if err != nil {
			return err
		}
		opts = append(opts, client.WithEndpoints(eps))
	}
	a.client = client.New(cfg.Client.BaseURL, token, opts...)

	switch cmd {
	case "list":
		return a.list(ctx, rest)
	case "approve":
		return a.approve(ctx, rest)
	case "reject":
		return a.reject(ctx, rest)
	case "bulk":
		return a.bulk(ctx, rest)
	case "paid":
		return a.paid(ctx, rest)
	case "notes":
		return a.notes(ctx, rest)
	case "summary":
		return a.summary(ctx)
	case "scenario":
		return a.scenario(ctx, rest)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// =============================================================================
// COMMANDS
// =============================================================================

func cmdToken(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	emp := fs.String("employee", "", "employee id")
	role := fs.String("role", string(approval.RoleEmployee), "role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tok, err := api.IssueToken(cfg.Auth.JWTSecret, approval.EmployeeID(*emp), approval.Role(*role), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "pending, approved, rejected, paid (default all)")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	board := approval.NewBoard(a.kind, a.actor.Role, a.client, a.cfg.Client.PageSize)
	if err := board.SetStatusFilter(ctx, approval.Status(*status)); err != nil {
		return err
	}
	if *page > 1 {
		if err := board.SetPage(ctx, *page); err != nil {
			return err
		}
	}
	a.printBoard(board)
	return nil
}

func (a *app) approve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	comment := fs.String("comment", "", "approval comment")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	disp, err := a.dispatcher(ctx, approval.StatusPending, 1, id)
	if err != nil {
		return err
	}
	defer disp.Close()
	return disp.ApproveSingle(ctx, id, *comment)
}

func (a *app) reject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reject", flag.ContinueOnError)
	reason := fs.String("reason", "", "rejection reason (required)")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	disp, err := a.dispatcher(ctx, approval.StatusPending, 1, id)
	if err != nil {
		return err
	}
	defer disp.Close()
	return disp.RejectSingle(ctx, id, *reason)
}

func (a *app) bulk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bulk", flag.ContinueOnError)
	action := fs.String("action", "", "approve or reject")
	reason := fs.String("reason", "", "rejection reason")
	comment := fs.String("comment", "", "approval comment")
	page := fs.Int("page", 1, "page of pending records to act on")
	if err := fs.Parse(args); err != nil {
		return err
	}
	act, err := approval.ParseAction(*action)
	if err != nil {
		return err
	}
	disp, err := a.dispatcher(ctx, approval.StatusPending, *page, "")
	if err != nil {
		return err
	}
	defer disp.Close()

	board := disp.Board
	if fs.NArg() == 0 {
		board.ToggleAll()
	} else {
		for _, id := range fs.Args() {
			if err := board.ToggleOne(approval.RecordID(id)); err != nil {
				return err
			}
		}
	}
	if err := board.OpenBulk(); err != nil {
		return err
	}
	res, err := disp.BulkAction(ctx, board.Selected(), act, approval.BulkOptions{Reason: *reason, Comment: *comment})
	if err != nil {
		return err
	}
	for _, id := range res.FailedIDs {
		fmt.Fprintf(a.out, "  failed: %s\n", id)
	}
	return nil
}

func (a *app) paid(ctx context.Context, args []string) error {
	id, err := parseWithID(flag.NewFlagSet("paid", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	disp, err := a.dispatcher(ctx, approval.StatusApproved, 1, id)
	if err != nil {
		return err
	}
	defer disp.Close()
	return disp.MarkAsPaid(ctx, id)
}

// notes saves immediately; the dispatcher's debounce only helps while typing.
func (a *app) notes(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: notes ID TEXT")
	}
	res, err := a.client.SaveNotes(ctx, a.kind, approval.RecordID(args[0]), strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

// summary fetches every record of both queues concurrently.
func (a *app) summary(ctx context.Context) error {
	kinds := approval.ListKinds()
	results := make([][]approval.Record, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			recs, err := a.client.FetchAll(gctx, kind, "", 100)
			if err != nil {
				return fmt.Errorf("%s: %w", kind.KindID(), err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSTATUS\tCOUNT\tAMOUNT\tACTIONABLE")
	for i, kind := range kinds {
		counts := make(map[approval.Status]int)
		actionable := make(map[approval.Status]int)
		for _, rec := range results[i] {
			counts[rec.Status]++
			if approval.CanAct(rec, a.actor.Role) {
				actionable[rec.Status]++
			}
		}
		totals := map[approval.Status]string{}
		if t, ok := kind.(approval.Totaler); ok {
			for s, d := range t.Totals(results[i]) {
				totals[s] = d.StringFixed(2)
			}
		}
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			st := approval.Status(s)
			amount := totals[st]
			if amount == "" {
				amount = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", kind.KindID(), s, counts[st], amount, actionable[st])
		}
	}
	return tw.Flush()
}

func (a *app) scenario(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: scenario NAME")
	}
	res, err := a.client.LoadScenario(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// dispatcherLimit is the largest page size the API serves.
const dispatcherLimit = 100

// dispatcher opens a board on status at page. With an id, it pages forward
// until the record is on the board, so actions reach records past the first
// page.
func (a *app) dispatcher(ctx context.Context, status approval.Status, page int, id approval.RecordID) (*approval.Dispatcher, error) {
	board := approval.NewBoard(a.kind, a.actor.Role, a.client, dispatcherLimit)
	if err := board.SetStatusFilter(ctx, status); err != nil {
		return nil, err
	}
	if page > 1 {
		if err := board.SetPage(ctx, page); err != nil {
			return nil, err
		}
	}
	if id != "" {
		if err := seek(ctx, board, id); err != nil {
			return nil, err
		}
	}
	return approval.NewDispatcher(board, a.client,
		approval.WithNotifier(printNotifier{out: a.out}),
		approval.WithLogger(a.logger.Named("dispatcher")),
	), nil
}

// seek moves board forward until id is on the current page or the pages run
// out. A record that is never found is left for the dispatcher to refuse.
func seek(ctx context.Context, board *approval.Board, id approval.RecordID) error {
	for {
		if _, ok := board.Record(id); ok {
			return nil
		}
		p := board.Page()
		if p.Page >= p.TotalPages {
			return nil
		}
		if err := board.SetPage(ctx, p.Page+1); err != nil {
			return err
		}
	}
}

func (a *app) printBoard(board *approval.Board) {
	page := board.Page()
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMPLOYEE\tSTATUS\tLEVEL\tACT\tSUMMARY")
	for _, v := range board.Views() {
		act := ""
		if v.Actionable {
			act = "*"
		}
		level := string(v.Record.CurrentLevel)
		if level == "" {
			level = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Record.ID, v.Record.EmployeeID, v.Label(), level, act, a.kind.Summary(v.Record.Payload))
	}
	tw.Flush()
	fmt.Fprintf(a.out, "page %d of %d (%d records)\n", page.Page, page.TotalPages, page.Total)
}

type printNotifier struct{ out io.Writer }

func (n printNotifier) Success(msg string) { fmt.Fprintln(n.out, "ok:", msg) }
func (n printNotifier) Error(msg string)   { fmt.Fprintln(n.out, "failed:", msg) }

func parseWithID(fs *flag.FlagSet, args []string) (approval.RecordID, error) {
	// accept the id before or after the flags
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if id == "" && fs.NArg() > 0 {
		id = fs.Arg(0)
	}
	if id == "" {
		return "", fmt.Errorf("%s: record id is required", fs.Name())
	}
	return approval.RecordID(id), nil
}

// actorFromToken reads the identity claims without verifying the
// signature; the server verifies every request anyway.
func actorFromToken(token string) (approval.Actor, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return approval.Actor{}, fmt.Errorf("read token: %w", err)
	}
	emp, _ := claims["employee_id"].(string)
	role, _ := claims["role"].(string)
	if emp == "" || role == "" {
		return approval.Actor{}, errors.New("token has no employee_id/role claims")
	}
	return approval.Actor{EmployeeID: approval.EmployeeID(emp), Role: approval.Role(role)}, nil
}

func kindNames() string {
	var names []string
	for _, k := range approval.ListKinds() {
		names = append(names, k.KindID())
	}
	return strings.Join(names, ", ")
}
