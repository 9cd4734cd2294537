// market-cli is a command-line client for a marketd daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/api"
	"github.com/Klingon-tech/klingnet-market/internal/apiclient"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	"github.com/Klingon-tech/klingnet-market/internal/transfer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	apiURL := "http://127.0.0.1:8080"
	if env := os.Getenv("MARKET_API_URL"); env != "" {
		apiURL = env
	}
	timeout := 30 * time.Second

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--api" && len(args) > 1:
			apiURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--api="):
			apiURL = args[0][len("--api="):]
			args = args[1:]
		case args[0] == "--timeout" && len(args) > 1:
			timeout = parseTimeout(args[1])
			args = args[2:]
		case strings.HasPrefix(args[0], "--timeout="):
			timeout = parseTimeout(args[0][len("--timeout="):])
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := apiclient.NewWithTimeout(apiURL, timeout)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "health":
		cmdHealth(client)
	case "tokens":
		cmdTokens(client)
	case "token":
		cmdToken(client, cmdArgs)
	case "create":
		cmdCreate(client, cmdArgs)
	case "buy":
		cmdBuy(client, cmdArgs)
	case "confirm":
		cmdConfirm(client, cmdArgs)
	case "sale":
		cmdSale(client, cmdArgs)
	case "transfer":
		cmdTransfer(client, cmdArgs)
	case "balances":
		cmdBalances(client, cmdArgs)
	case "history":
		cmdHistory(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: market-cli [global flags] <command> [flags]

Global flags:
  --api <url>         API endpoint (default: http://127.0.0.1:8080, or $MARKET_API_URL)
  --timeout <dur>     HTTP timeout (default: 30s)

Commands:
  health                          Check that the daemon is up
  tokens                          List tokens, newest first
  token <id>                      Show one token

  create --type listing --name <n> --ticker <T> --supply <n> --price <p> [--owner <addr>]
                                  Create a fixed-supply listing
  create --type user --name <n> --ticker <T> [--price <p>] [--owner <addr>]
                                  Create a dynamically priced user token

  buy <token_id> --buyer <addr> --amount <n>
                                  Request a quote; pay the cost to the receiver
  confirm <sale_id> [--tx <hash>] Confirm a sale against the chain
  sale <sale_id>                  Show sale status

  transfer --token <id> --from <addr> --to <addr> --amount <n>
                                  Move a balance between addresses
  balances <address>              Show balances held by address
  history <address>               Show purchase history of address
`)
}

func parseTimeout(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		fatal("invalid timeout %q", s)
	}
	return d
}

// ── health ──────────────────────────────────────────────────────────────

func cmdHealth(client *apiclient.Client) {
	h, err := client.Health()
	if err != nil {
		fatal("health: %v", err)
	}
	fmt.Printf("OK:    %v\n", h.OK)
	fmt.Printf("Time:  %s\n", time.UnixMilli(h.TS).UTC().Format(time.RFC3339))
}

// ── tokens ──────────────────────────────────────────────────────────────

func cmdTokens(client *apiclient.Client) {
	tokens, err := client.Tokens()
	if err != nil {
		fatal("tokens: %v", err)
	}
	if len(tokens) == 0 {
		fmt.Println("No tokens.")
		return
	}

	fmt.Printf("%-22s %-8s %-10s %-14s %s\n", "ID", "TYPE", "TICKER", "PRICE", "SUPPLY")
	for _, t := range tokens {
		typ, _ := t["type"].(string)
		price, supply := "", ""
		switch ledger.TokenType(typ) {
		case ledger.TypeListing:
			price = formatNum(t["pricePerToken"])
			supply = formatNum(t["remainingSupply"]) + "/" + formatNum(t["totalSupply"])
		case ledger.TypeUser:
			price = formatNum(t["dynamicPrice"])
			supply = formatNum(t["supplyIssued"]) + " issued"
		}
		fmt.Printf("%-22v %-8s %-10v %-14s %s\n", t["id"], typ, t["ticker"], price, supply)
	}
}

func cmdToken(client *apiclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: market-cli token <id>")
	}
	tok, err := client.Token(args[0])
	if err != nil {
		fatal("token: %v", err)
	}
	printJSON(tok)
}

// ── create ──────────────────────────────────────────────────────────────

func cmdCreate(client *apiclient.Client, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	typ := fs.String("type", "", "Token type: listing or user")
	name := fs.String("name", "", "Token name")
	ticker := fs.String("ticker", "", "Token ticker")
	owner := fs.String("owner", "", "Receiving wallet (default: platform wallet)")
	supply := fs.String("supply", "", "Total supply (listing)")
	price := fs.String("price", "", "Price per token")
	fs.Parse(args)

	if *typ == "" || *name == "" || *ticker == "" {
		fatal("Usage: market-cli create --type <listing|user> --name <n> --ticker <T> [...]")
	}

	req := api.CreateTokenRequest{
		Type:   ledger.TokenType(*typ),
		Name:   *name,
		Ticker: *ticker,
		Owner:  *owner,
	}
	switch req.Type {
	case ledger.TypeListing:
		if *supply == "" || *price == "" {
			fatal("listing tokens need --supply and --price")
		}
		req.TotalSupply = parseAmount(*supply)
		req.PricePerToken = parseAmount(*price)
	case ledger.TypeUser:
		if *price != "" {
			req.DynamicPrice = parseAmount(*price)
		}
	default:
		fatal("unknown token type %q", *typ)
	}

	id, err := client.CreateToken(req)
	if err != nil {
		fatal("create: %v", err)
	}
	fmt.Printf("Token created: %s\n", id)
}

// ── buy / confirm / sale ────────────────────────────────────────────────

func cmdBuy(client *apiclient.Client, args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("Usage: market-cli buy <token_id> --buyer <addr> --amount <n>")
	}
	tokenID := args[0]

	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	buyer := fs.String("buyer", "", "Buyer wallet address")
	amountStr := fs.String("amount", "", "Number of tokens")
	fs.Parse(args[1:])

	if *buyer == "" || *amountStr == "" {
		fatal("Usage: market-cli buy <token_id> --buyer <addr> --amount <n>")
	}

	quote, err := client.Buy(tokenID, *buyer, parseAmount(*amountStr))
	if err != nil {
		fatal("buy: %v", err)
	}
	fmt.Printf("Sale:      %s\n", quote.SaleID)
	fmt.Printf("Cost:      %s\n", strconv.FormatFloat(quote.Cost, 'f', -1, 64))
	fmt.Printf("Pay to:    %s\n", quote.Receiver)
	fmt.Printf("\nAfter paying, run: market-cli confirm %s --tx <hash>\n", quote.SaleID)
}

func cmdConfirm(client *apiclient.Client, args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("Usage: market-cli confirm <sale_id> [--tx <hash>]")
	}
	saleID := args[0]

	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	txHash := fs.String("tx", "", "Payment transaction hash")
	fs.Parse(args[1:])

	res, err := client.Confirm(saleID, *txHash)
	if err != nil {
		fatal("confirm: %v", err)
	}
	if res.OK {
		fmt.Printf("Sale %s: %s (tx %s)\n", saleID, res.Message, res.TxHash)
		if res.SenderUnverified {
			fmt.Println("Warning: the payment's sender could not be verified.")
		}
		return
	}

	fmt.Printf("Not confirmed: %s\n", res.Reason)
	if res.Amount != nil && res.Expected != nil {
		fmt.Printf("  Paid:     %s\n", strconv.FormatFloat(*res.Amount, 'f', -1, 64))
		fmt.Printf("  Expected: %s\n", strconv.FormatFloat(*res.Expected, 'f', -1, 64))
	}
	if res.Sender != "" {
		fmt.Printf("  Sender:   %s\n", res.Sender)
	}
	os.Exit(2)
}

func cmdSale(client *apiclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: market-cli sale <sale_id>")
	}
	s, err := client.Sale(args[0])
	if err != nil {
		fatal("sale: %v", err)
	}
	printJSON(s)
}

// ── transfer ────────────────────────────────────────────────────────────

func cmdTransfer(client *apiclient.Client, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	tokenID := fs.String("token", "", "Token ID")
	from := fs.String("from", "", "Sender address")
	to := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount to move")
	fs.Parse(args)

	if *tokenID == "" || *from == "" || *to == "" || *amountStr == "" {
		fatal("Usage: market-cli transfer --token <id> --from <addr> --to <addr> --amount <n>")
	}

	err := client.Transfer(transfer.Request{
		TokenID: *tokenID,
		From:    *from,
		To:      *to,
		Amount:  parseAmount(*amountStr),
	})
	if err != nil {
		fatal("transfer: %v", err)
	}
	fmt.Println("Transfer complete.")
}

// ── balances / history ──────────────────────────────────────────────────

func cmdBalances(client *apiclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: market-cli balances <address>")
	}
	balances, err := client.Balances(args[0])
	if err != nil {
		fatal("balances: %v", err)
	}
	if len(balances) == 0 {
		fmt.Println("No balances.")
		return
	}
	fmt.Printf("%-22s %s\n", "TOKEN", "AMOUNT")
	for _, b := range balances {
		fmt.Printf("%-22s %s\n", b.TokenID, strconv.FormatFloat(b.Amount, 'f', -1, 64))
	}
}

func cmdHistory(client *apiclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: market-cli history <address>")
	}
	entries, err := client.History(args[0])
	if err != nil {
		fatal("history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No history.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-14s %-8s amount=%s cost=%s",
			e.When.UTC().Format(time.RFC3339), e.Type, e.TokenTicker,
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			strconv.FormatFloat(e.Cost, 'f', -1, 64))
		if e.TxHash != "" {
			fmt.Printf(" tx=%s", e.TxHash)
		}
		fmt.Println()
	}
}

// ── helpers ─────────────────────────────────────────────────────────────

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		fatal("invalid amount %q", s)
	}
	return v
}

func formatNum(v any) string {
	f, ok := v.(float64)
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
