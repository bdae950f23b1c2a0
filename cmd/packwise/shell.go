package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/pack"
	"github.com/jany-pan/packwise/internal/session"
)

const help = `commands:
  new <trip> | <leader> [| <route url> [| <participant>...]]
  person                 add a participant and make them active
  use <n|id>             switch the active participant
  add <name> | <grams> [| <category> [| <price> [| <qty>]]]
  rm <item id>
  toggle <item id> <worn|consumable|checked>
  show | stats | share | edit | recent | insights
  lang <en|sk>
  quit`

var errQuit = errors.New("quit")

type shell struct {
	sess     *session.Session
	shareURL string
	out      io.Writer
	analyzed map[string]bool
}

func serve(ctx context.Context, sess *session.Session, shareURL, id string, in io.Reader, out io.Writer) error {
	sh := &shell{sess: sess, shareURL: shareURL, out: out, analyzed: map[string]bool{}}
	if err := sess.Start(ctx, id); err != nil {
		return err
	}
	sh.status()

	lines := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !lines.Scan() {
			return lines.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		err := sh.exec(ctx, lines.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", sh.describe(err))
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(sh.out, help)
	case "new":
		return sh.newTrip(ctx, fields(rest))
	case "person":
		id, err := sh.sess.AddParticipant(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "participant %s added\n", id)
	case "use":
		return sh.use(rest)
	case "add":
		return sh.addItem(ctx, fields(rest))
	case "rm":
		if err := sh.sess.RemoveItem(ctx, sh.sess.ActiveParticipant(), rest); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "removed")
	case "toggle":
		itemID, name, _ := strings.Cut(rest, " ")
		return sh.sess.ToggleItemFlag(ctx, sh.sess.ActiveParticipant(), itemID, parseFlag(name))
	case "show":
		return sh.show()
	case "stats":
		return sh.stats()
	case "share":
		link, err := sh.sess.ShareLink(sh.shareURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, link)
	case "edit":
		if err := sh.sess.MakeEditable(ctx); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "trip is now a local copy")
	case "lang":
		if err := sh.sess.SetLanguage(ctx, rest); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "language %s\n", sh.sess.Language())
	case "recent":
		for _, r := range sh.sess.RecentTrips(ctx) {
			fmt.Fprintf(sh.out, "%s  %s  %s\n", r.ID, r.Name, time.UnixMilli(r.LastVisited).Format(time.DateTime))
		}
	case "insights":
		return sh.insights(ctx)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (sh *shell) status() {
	doc, ok := sh.sess.Trip()
	if !ok {
		fmt.Fprintln(sh.out, "no trip loaded, start one with: new <trip> | <leader>")
		return
	}
	fmt.Fprintf(sh.out, "%s (%s)\n", doc.Name, sh.sess.Mode())
}

func (sh *shell) newTrip(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: new <trip> | <leader>")
	}
	var route string
	var people []string
	if len(args) > 2 {
		route = args[2]
		people = args[3:]
	}
	doc, err := sh.sess.CreateTrip(ctx, args[0], args[1], route, people)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "created %s as %s\n", doc.Name, sh.sess.SharedID())
	return nil
}

func (sh *shell) use(ref string) error {
	doc, ok := sh.sess.Trip()
	if !ok {
		return session.ErrNoTrip
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(doc.Participants) {
		ref = doc.Participants[n-1].ID
	}
	if err := sh.sess.SetActiveParticipant(ref); err != nil {
		return err
	}
	p, _ := doc.Participant(ref)
	fmt.Fprintf(sh.out, "packing for %s\n", p.OwnerName)
	return nil
}

func (sh *shell) addItem(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: add <name> | <grams>")
	}
	weight, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("weight: %w", err)
	}
	item := pack.GearItem{Name: args[0], Weight: weight, Quantity: 1, Category: pack.CategoryMisc}
	if len(args) > 2 {
		item.Category = pack.NormalizeCategory(args[2])
	}
	if len(args) > 3 {
		if item.Price, err = strconv.ParseFloat(args[3], 64); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	if len(args) > 4 {
		if item.Quantity, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
	}

	pid := sh.sess.ActiveParticipant()
	added, err := sh.sess.AddItem(ctx, pid, item)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "added %s %s\n", added.ID, added.Name)
	sh.autoInsights(ctx, pid)
	return nil
}

// autoInsights analyses a pack the first time it reaches insight.AutoItems.
func (sh *shell) autoInsights(ctx context.Context, pid string) {
	if sh.analyzed[pid] {
		return
	}
	doc, ok := sh.sess.Trip()
	if !ok {
		return
	}
	if p, found := doc.Participant(pid); !found || len(p.Items) < insight.AutoItems {
		return
	}
	if err := sh.insights(ctx); err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", sh.describe(err))
	}
}

func (sh *shell) show() error {
	doc, ok := sh.sess.Trip()
	if !ok {
		return session.ErrNoTrip
	}
	fmt.Fprintf(sh.out, "%s, led by %s\n", doc.Name, doc.LeaderName)
	if doc.RouteURL != "" {
		fmt.Fprintf(sh.out, "route: %s\n", doc.RouteURL)
	}
	active := sh.sess.ActiveParticipant()
	for i, p := range doc.Participants {
		marker := " "
		if p.ID == active {
			marker = "*"
		}
		fmt.Fprintf(sh.out, "%s %d. %s [%s]\n", marker, i+1, p.OwnerName, p.ID)
		for _, g := range pack.GroupByCategory(p.Items) {
			fmt.Fprintf(sh.out, "    %s\n", g.Category)
			for _, item := range g.Items {
				fmt.Fprintf(sh.out, "      %s  %s x%d  %sg%s\n", item.ID, item.Name, item.Quantity, number(item.Weight), itemFlags(item))
			}
		}
	}
	return nil
}

func (sh *shell) stats() error {
	per, group, err := sh.sess.Stats()
	if err != nil {
		return err
	}
	for _, p := range per {
		fmt.Fprintf(sh.out, "%-20s %s\n", p.OwnerName, statsLine(p.Stats))
	}
	fmt.Fprintf(sh.out, "%-20s %s\n", "group", statsLine(group))
	return nil
}

func (sh *shell) insights(ctx context.Context) error {
	pid := sh.sess.ActiveParticipant()
	sh.analyzed[pid] = true
	out, err := sh.sess.Insights(ctx, pid)
	if err != nil {
		return err
	}
	for _, in := range out {
		fmt.Fprintf(sh.out, "[%s] %s\n  %s\n", in.Priority, in.Title, in.Advice)
	}
	return nil
}

// describe turns insight failures into the localized message shown to users.
func (sh *shell) describe(err error) string {
	if errors.Is(err, insight.ErrTooFewItems) || errors.Is(err, insight.ErrGenerationFailed) || errors.Is(err, insight.ErrRateLimited) {
		return insight.Message(sh.sess.Language(), err)
	}
	return err.Error()
}

func statsLine(s pack.Stats) string {
	return fmt.Sprintf("total %.2f kg  base %.2f kg  worn %.2f kg  consumable %.2f kg  €%.2f",
		pack.Kilograms(s.TotalWeight), pack.Kilograms(s.BaseWeight), pack.Kilograms(s.WornWeight),
		pack.Kilograms(s.ConsumableWeight), s.TotalPrice)
}

func itemFlags(item pack.GearItem) string {
	var b strings.Builder
	if item.IsWorn {
		b.WriteString(" [worn]")
	}
	if item.IsConsumable {
		b.WriteString(" [consumable]")
	}
	if item.IsChecked {
		b.WriteString(" [packed]")
	}
	return b.String()
}

func parseFlag(name string) pack.Flag {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "worn", "isworn":
		return pack.FlagWorn
	case "consumable", "isconsumable":
		return pack.FlagConsumable
	case "checked", "packed", "ischecked":
		return pack.FlagChecked
	}
	return pack.Flag(name)
}

// fields splits a "|" separated argument list, dropping surrounding spaces.
func fields(rest string) []string {
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
