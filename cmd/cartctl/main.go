// cartctl is a CLI tool for driving a running cartd.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl login -token TOKEN
//	cartctl logout
//	cartctl show
//	cartctl count [-server]
//	cartctl add -product ID [-qty N]
//	cartctl update -product ID -qty N
//	cartctl remove -product ID
//	cartctl clear
//	cartctl sync
//	cartctl refresh
//	cartctl watch [-redis ADDR]
//
// Examples:
//
//	cartctl login -token "$TOKEN"
//	cartctl add -product 42 -qty 2
//	cartctl sync -q && echo "ready for checkout"
//	cartctl watch
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cartsync/internal/fanout"
	"cartsync/internal/model"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	daemonURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// exitNotReady is returned by sync when the cart cannot go to checkout.
const exitNotReady = 3

// cartView mirrors the daemon's cart response.
type cartView struct {
	Items         []model.CartLine `json:"items"`
	Count         int              `json:"count"`
	TotalQuantity int              `json:"totalQuantity"`
	TotalPrice    float64          `json:"totalPrice"`
	Authenticated bool             `json:"authenticated"`
}

// syncResult mirrors the daemon's sync response.
type syncResult struct {
	Synced      bool              `json:"synced"`
	StockChange model.StockChange `json:"stockChange"`
	Readiness   struct {
		Ready    bool     `json:"ready"`
		Empty    bool     `json:"empty"`
		Blocking []string `json:"blocking"`
	} `json:"readiness"`
	Cart cartView `json:"cart"`
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		runLogin(args)
	case "logout":
		runLogout(args)
	case "show":
		runShow(args)
	case "count":
		runCount(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "clear":
		runClear(args)
	case "sync":
		runSync(args)
	case "refresh":
		runRefresh(args)
	case "watch":
		runWatch(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cartd command line client

Usage:
  cartctl <command> [options]

Commands:
  login     Start a session (the daemon loads the cart)
  logout    End the session (the daemon clears the cart)
  show      Show cart lines and totals
  count     Show the distinct line count (local or -server)
  add       Add a product
  update    Set a line's quantity (0 removes)
  remove    Remove a product
  clear     Empty the cart
  sync      Reconcile with the store and check checkout readiness
  refresh   Reload the whole cart from the store (e.g. after a failed login load)
  watch     Stream cart events

Examples:
  cartctl login -token "$TOKEN"
  cartctl add -product 42 -qty 2
  cartctl sync -q && echo "ready for checkout"
  cartctl watch -redis localhost:6379

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&daemonURL, "addr", envOr("CARTD_ADDR", "http://localhost:8080"), "cartd base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output for scripts")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	daemonURL = strings.TrimSuffix(daemonURL, "/")
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login", "login -token TOKEN [options]")
	var token string
	fs.StringVar(&token, "token", os.Getenv("CART_TOKEN"), "Bearer token for the cart API (default $CART_TOKEN)")
	parseFlags(fs, args)

	if token == "" {
		fs.Usage()
		os.Exit(1)
	}

	if err := doRequest("POST", "/session", map[string]string{"token": token}, nil); err != nil {
		fatal("Login failed: %v", err)
	}
	printSuccess("Logged in")
	printInfo("Cart is loading; run 'cartctl show' or 'cartctl watch'")
}

func runLogout(args []string) {
	fs := newFlagSet("logout", "logout [options]")
	parseFlags(fs, args)

	if err := doRequest("DELETE", "/session", nil, nil); err != nil {
		fatal("Logout failed: %v", err)
	}
	printSuccess("Logged out")
}

// =============================================================================
// READ COMMANDS
// =============================================================================

func runShow(args []string) {
	fs := newFlagSet("show", "show [options]")
	parseFlags(fs, args)

	var v cartView
	if err := doRequest("GET", "/cart", nil, &v); err != nil {
		fatal("Failed to get cart: %v", err)
	}

	if quiet {
		fmt.Println(v.Count)
		return
	}
	printCart(v)
}

func runCount(args []string) {
	fs := newFlagSet("count", "count [-server] [options]")
	var server bool
	fs.BoolVar(&server, "server", false, "Ask the store instead of the local cart")
	parseFlags(fs, args)

	path := "/cart/count"
	if server {
		path += "?source=server"
	}

	var resp struct {
		Count  int    `json:"count"`
		Source string `json:"source"`
	}
	if err := doRequest("GET", path, nil, &resp); err != nil {
		fatal("Failed to get count: %v", err)
	}

	if quiet {
		fmt.Println(resp.Count)
		return
	}
	fmt.Printf("  Count (%s): %s%d%s\n", resp.Source, colorCyan, resp.Count, colorReset)
}

// =============================================================================
// MUTATION COMMANDS
// =============================================================================

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product ID [-qty N] [options]")
	var productID int64
	var quantity int
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity")
	parseFlags(fs, args)

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	var v cartView
	body := map[string]interface{}{"productId": productID, "quantity": quantity}
	if err := doRequest("POST", "/cart/items", body, &v); err != nil {
		fatal("Failed to add item: %v", err)
	}
	printSuccess("Added product %d", productID)
	printLineSummary(v, productID)
}

func runUpdate(args []string) {
	fs := newFlagSet("update", "update -product ID -qty N [options]")
	var productID int64
	var quantity int
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity; 0 removes the line (required)")
	parseFlags(fs, args)

	if productID <= 0 || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	var v cartView
	path := fmt.Sprintf("/cart/items/%d", productID)
	if err := doRequest("PUT", path, map[string]int{"quantity": quantity}, &v); err != nil {
		fatal("Failed to update item: %v", err)
	}
	printSuccess("Updated product %d", productID)
	printLineSummary(v, productID)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -product ID [options]")
	var productID int64
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	parseFlags(fs, args)

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	var v cartView
	if err := doRequest("DELETE", fmt.Sprintf("/cart/items/%d", productID), nil, &v); err != nil {
		fatal("Failed to remove item: %v", err)
	}
	printSuccess("Removed product %d", productID)
	printInfo("%d line(s) left", v.Count)
}

func runClear(args []string) {
	fs := newFlagSet("clear", "clear [options]")
	parseFlags(fs, args)

	if err := doRequest("DELETE", "/cart", nil, nil); err != nil {
		fatal("Failed to clear cart: %v", err)
	}
	printSuccess("Cart cleared")
}

// =============================================================================
// SYNC COMMAND
// =============================================================================

func runSync(args []string) {
	fs := newFlagSet("sync", "sync [options]")
	parseFlags(fs, args)

	var res syncResult
	if err := doRequest("POST", "/cart/sync", nil, &res); err != nil {
		fatal("Sync failed: %v", err)
	}

	if !quiet {
		if !res.Synced {
			printWarning("Store unreachable; showing the local cart")
		}
		if res.StockChange.HasStockChanges {
			printWarning("Stock changed for: %s", strings.Join(res.StockChange.ChangedItems, ", "))
		}
		printCart(res.Cart)
	}

	switch {
	case res.Readiness.Empty:
		printError("Cart is empty")
	case !res.Readiness.Ready:
		printError("Not enough stock for: %s", strings.Join(res.Readiness.Blocking, ", "))
	default:
		printSuccess("Ready for checkout")
		return
	}
	os.Exit(exitNotReady)
}

func runRefresh(args []string) {
	fs := newFlagSet("refresh", "refresh [options]")
	parseFlags(fs, args)

	var v cartView
	if err := doRequest("POST", "/cart/refresh", nil, &v); err != nil {
		fatal("Refresh failed: %v", err)
	}

	if quiet {
		fmt.Println(v.Count)
		return
	}
	printSuccess("Cart reloaded")
	printCart(v)
}

// =============================================================================
// WATCH COMMAND
// =============================================================================

func runWatch(args []string) {
	fs := newFlagSet("watch", "watch [-redis ADDR] [options]")
	var redisAddr, channel string
	fs.StringVar(&redisAddr, "redis", "", "Subscribe to the Redis fan-out at ADDR instead of the daemon's event stream")
	fs.StringVar(&channel, "channel", fanout.DefaultChannel, "Redis channel (with -redis)")
	parseFlags(fs, args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if redisAddr != "" {
		err = watchRedis(ctx, redisAddr, channel)
	} else {
		err = watchEvents(ctx)
	}
	if err != nil && ctx.Err() == nil {
		fatal("Watch failed: %v", err)
	}
}

// watchEvents prints the daemon's Server-Sent Events until ctx ends.
func watchEvents(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", daemonURL+"/cart/events", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream has no deadline; ctx ends it
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	printInfo("Watching %s/cart/events (Ctrl-C to stop)", daemonURL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			printEvent(event, []byte(strings.TrimPrefix(line, "data: ")))
		case line == "":
			event = ""
		}
	}
	return scanner.Err()
}

// watchRedis prints fan-out events published by any cartd instance.
func watchRedis(ctx context.Context, addr, channel string) error {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	printInfo("Watching redis %s channel %s (Ctrl-C to stop)", addr, channel)

	return fanout.Subscribe(ctx, rdb, channel, func(ev fanout.Event) {
		switch ev.Type {
		case fanout.EventStock:
			if ev.StockChange != nil {
				data, _ := json.Marshal(ev.StockChange)
				printEvent("stock", data)
			}
		case fanout.EventCount:
			if ev.Count != nil {
				printEvent("count", []byte(fmt.Sprint(*ev.Count)))
			}
		}
	})
}

func printEvent(event string, data []byte) {
	stamp := time.Now().Format("15:04:05")
	if quiet {
		fmt.Printf("%s %s\n", event, data)
		return
	}

	switch event {
	case "snapshot":
		var lines []model.CartLine
		if err := json.Unmarshal(data, &lines); err != nil {
			break
		}
		fmt.Printf("%s%s%s %ssnapshot%s %d line(s)\n", colorGray, stamp, colorReset, colorCyan, colorReset, len(lines))
		if verbose {
			for _, l := range lines {
				printLine(l)
			}
		}
		return
	case "count":
		fmt.Printf("%s%s%s %scount%s %s\n", colorGray, stamp, colorReset, colorCyan, colorReset, data)
		return
	case "stock":
		var sc model.StockChange
		if err := json.Unmarshal(data, &sc); err != nil {
			break
		}
		fmt.Printf("%s%s%s %sstock%s changed: %s\n", colorGray, stamp, colorReset, colorYellow, colorReset,
			strings.Join(sc.ChangedItems, ", "))
		return
	}
	fmt.Printf("%s%s%s %s %s\n", colorGray, stamp, colorReset, event, data)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// doRequest sends body as JSON and decodes the response into out when non-nil.
func doRequest(method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, daemonURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// errorMessage extracts "CODE: message" from an error body, or returns it raw.
func errorMessage(body []byte) string {
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Code == "" {
		return strings.TrimSpace(string(body))
	}
	return resp.Error.Code + ": " + resp.Error.Message
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(v cartView) {
	if !v.Authenticated {
		printWarning("Not logged in")
	}
	if len(v.Items) == 0 {
		printInfo("Cart is empty")
		return
	}

	fmt.Printf("%sCart%s (%d lines, %d items)\n", colorBold, colorReset, v.Count, v.TotalQuantity)
	for _, l := range v.Items {
		printLine(l)
	}
	fmt.Printf("  Total: %s%s%s\n", colorGreen, model.FormatAmount(v.TotalPrice, ""), colorReset)
}

func printLine(l model.CartLine) {
	stockColor := colorGray
	if l.AvailableStock == 0 || l.AvailableStock < l.Quantity {
		stockColor = colorRed
	}
	fmt.Printf("  %s%6d%s  %-30s x%-3d %10s  %s(stock %d)%s\n",
		colorCyan, l.ProductID, colorReset,
		l.ProductName, l.Quantity, model.FormatAmount(l.TotalPrice, ""),
		stockColor, l.AvailableStock, colorReset)
}

func printLineSummary(v cartView, productID int64) {
	if quiet {
		fmt.Println(v.Count)
		return
	}
	for _, l := range v.Items {
		if l.ProductID == productID {
			printLine(l)
			return
		}
	}
	printInfo("Product %d is no longer in the cart", productID)
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
