package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/vitos/trade_journal/internal/config"
	"github.com/vitos/trade_journal/internal/domain"
	"github.com/vitos/trade_journal/internal/usecase"
)

// leveltable validates the configured level table and challenge catalog and prints them.
// Extra arguments are XP totals to resolve against the table.
func main() {
	configPath := flag.String("config", "", "path to the YAML config (defaults are used when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config:\n%v\n", err)
		os.Exit(1)
	}

	table, _ := cfg.LevelTable()
	catalog, _ := cfg.Catalog()
	resolver := usecase.NewLevelResolver(table)

	fmt.Println("=== Levels ===")
	for _, l := range table.Levels() {
		upper := "∞"
		if !l.Terminal() {
			upper = strconv.FormatInt(l.MaxXP-1, 10)
		}
		fmt.Printf("%2d  %-20s %s  %6d .. %-6s %s\n", l.Level, l.Title, l.Badge, l.MinXP, upper, l.Color)
	}

	fmt.Println("\n=== Challenges ===")
	for _, group := range [][]domain.ChallengeDefinition{catalog.Personal(), catalog.Shared()} {
		for _, d := range group {
			scope := "personal"
			if d.Shared {
				scope = "shared/" + string(d.Policy)
			}
			fmt.Printf("%-24s %-7s %-18s %5d XP  %s\n", d.ID, d.Type, scope, d.XPReward, d.Title)
		}
	}

	if flag.NArg() == 0 {
		return
	}
	fmt.Println("\n=== Resolve ===")
	for _, arg := range flag.Args() {
		xp, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Printf("%s: not a number\n", arg)
			continue
		}
		level, err := resolver.ResolveLevel(xp)
		if err != nil {
			fmt.Printf("%d: %v\n", xp, err)
			continue
		}
		progress, _ := resolver.ProgressToNextLevel(xp)
		fmt.Printf("%d XP -> level %d %s (%d%%)\n", xp, level.Level, level.Title, progress)
	}
}
