// Package main is the FormSync popup equivalent: an interactive shell
// that talks to the bridge agent and can fill live pages through a
// local Chrome.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/formsync/extension-core/internal/autofill"
	"github.com/formsync/extension-core/internal/browser"
	"github.com/formsync/extension-core/internal/dom"
	"github.com/formsync/extension-core/internal/matcher"
	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

const bridgeMessagePath = "/bridge/message"

var (
	version   string
	buildDate string
)

// bridge sends Messages to the agent and decodes the Response envelope.
type bridge struct {
	client  *http.Client
	baseURL string
	key     string
}

func (b *bridge) send(msg models.Message) (*models.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, b.baseURL+bridgeMessagePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Extension-Key", b.key)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}
	return &out, nil
}

func (b *bridge) health() error {
	resp, err := b.client.Get(b.baseURL + "/bridge/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func (b *bridge) templates() ([]models.Template, error) {
	resp, err := b.send(models.Message{Action: models.ActionGetTemplates})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("bridge: %s", resp.Error)
	}
	return resp.Templates, nil
}

func printTemplates(ts []models.Template) {
	if len(ts) == 0 {
		fmt.Println("No templates available")
		return
	}
	for _, t := range ts {
		fmt.Printf("%4d  %-30s %d fields", t.ID, t.Name, len(t.Fields))
		if t.TotalUsageCount > 0 {
			fmt.Printf("  (used %d times)", t.TotalUsageCount)
		}
		fmt.Println()
	}
}

// repl runs the interactive shell loop for listing and filling.
func repl(b *bridge, filler *browser.LiveFiller) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("formsync> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, list, show <id>, fill <id> <url>, scan <file>, simulate <id> <file>, ping, health, exit")
		case "list":
			ts, err := b.templates()
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			printTemplates(ts)
		case "show":
			if len(args) < 2 {
				fmt.Println("Usage: show <id>")
				continue
			}
			tpl, err := findTemplate(b, args[1])
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			out, _ := json.MarshalIndent(tpl, "", "  ")
			fmt.Println(string(out))
		case "fill":
			if len(args) < 3 {
				fmt.Println("Usage: fill <id> <url>")
				continue
			}
			fill(b, filler, args[1], args[2])
		case "scan":
			if len(args) < 2 {
				fmt.Println("Usage: scan <file>")
				continue
			}
			scan(args[1])
		case "simulate":
			if len(args) < 3 {
				fmt.Println("Usage: simulate <id> <file>")
				continue
			}
			simulate(b, args[1], args[2])
		case "ping":
			resp, err := b.send(models.Message{Action: models.ActionPing})
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			fmt.Println(resp.Message)
		case "health":
			if err := b.health(); err != nil {
				fmt.Println("Bridge unhealthy:", err)
				continue
			}
			fmt.Println("Bridge is healthy")
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func findTemplate(b *bridge, idArg string) (*models.Template, error) {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad template id %q", idArg)
	}
	ts, err := b.templates()
	if err != nil {
		return nil, err
	}
	for i := range ts {
		if ts[i].ID == id {
			return &ts[i], nil
		}
	}
	return nil, fmt.Errorf("template %d not found", id)
}

func fill(b *bridge, filler *browser.LiveFiller, idArg, url string) {
	tpl, err := findTemplate(b, idArg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := filler.Fill(ctx, url, *tpl)
	success := err == nil && report != nil && report.FilledCount > 0
	if err != nil {
		fmt.Println("Fill failed:", err)
	} else {
		fmt.Printf("Filled %d field(s)", report.FilledCount)
		if len(report.Unfilled) > 0 {
			fmt.Printf(", unmatched: %s", strings.Join(report.Unfilled, ", "))
		}
		if report.Submitted {
			fmt.Print(", form submitted")
		}
		fmt.Println()
	}

	// Usage is reported regardless of outcome; the backend tracks both.
	_, _ = b.send(models.Message{
		Action:     models.ActionRecordUsage,
		TemplateID: tpl.ID,
		Success:    success,
	})
}

// scan parses a local HTML file and reports which inputs the field
// recognizer classifies, exactly as the content script would mark them.
func scan(path string) {
	page, err := loadPage(path)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	m := matcher.New(matcher.DefaultRules(), nil)
	candidates := m.Scan(page)
	if len(candidates) == 0 {
		fmt.Println("No recognizable fields")
		return
	}
	for _, c := range candidates {
		name := c.Element.Name()
		if name == "" {
			name = c.Element.ID()
		}
		fmt.Printf("%s  %-10s %s\n", c.Badge, c.Role, name)
	}
}

// simulate runs a template against a local HTML file using the
// in-memory page model, without touching a browser.
func simulate(b *bridge, idArg, path string) {
	tpl, err := findTemplate(b, idArg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	page, err := loadPage(path)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	exec := autofill.New(nil)
	exec.SubmitDelay = 0
	result := exec.FillTemplate(page, matcher.New(matcher.DefaultRules(), nil), *tpl)

	fmt.Printf("Filled %d field(s), %d unmatched", result.FilledCount, result.Unfilled)
	if result.Submitted {
		fmt.Print(", form would submit")
	}
	fmt.Println()
}

func loadPage(path string) (*dom.Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dom.Parse(string(src))
}

// main parses flags and starts the interactive shell.
func main() {
	var (
		baseURL  string
		key      string
		headless bool
		chrome   string
		showVer  bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8090", "bridge agent base URL")
	flag.StringVar(&key, "k", "ext_2024_preenche_rapido_secure_key_987654321", "extension API key")
	flag.BoolVar(&headless, "headless", false, "run Chrome headless during fill")
	flag.StringVar(&chrome, "chrome", "", "path to the Chrome binary")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("FormSync Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	filler := browser.New(zap.NewNop())
	filler.Headless = headless
	filler.ChromePath = chrome

	b := &bridge{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
	}

	repl(b, filler)
}
