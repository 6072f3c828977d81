// Command cli is a thin HTTP client for a running payment node. All state
// lives in the daemon; every subcommand maps to one API call.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultAddr = "http://127.0.0.1:9740"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(args)
	case "create-invoice":
		err = cmdCreateInvoice(args)
	case "pay":
		err = cmdPay(args)
	case "get-payment":
		err = cmdGetPayment(args)
	case "list-payments":
		err = cmdListPayments(args)
	case "events":
		err = cmdEvents(args)
	case "webhook-add":
		err = cmdWebhookAdd(args)
	case "webhook-list":
		err = cmdWebhookList(args)
	case "webhook-rm":
		err = cmdWebhookRemove(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: paynode-cli <command> [flags]

commands:
  login           exchange the node password for an API token
  create-invoice  create an invoice
  pay             pay an invoice (blocks until terminal)
  get-payment     show one payment
  list-payments   list payments
  events          read the event ledger
  webhook-add     register a webhook endpoint
  webhook-list    list webhook endpoints
  webhook-rm      delete a webhook endpoint

common flags: -addr (or PN_ADDR), -token (or PN_TOKEN)`)
}

type client struct {
	addr  string
	token string
	http  *http.Client
}

func commonFlags(fs *flag.FlagSet) (addr, token *string) {
	addr = fs.String("addr", envOr("PN_ADDR", defaultAddr), "daemon base URL")
	token = fs.String("token", os.Getenv("PN_TOKEN"), "API token")
	return
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient(addr, token string) *client {
	return &client{
		addr:  strings.TrimRight(addr, "/"),
		token: token,
		// pay blocks server-side until settlement or CMD_004.
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *client) do(method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.addr+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data      json.RawMessage `json:"data"`
		ErrorCode string          `json:"error_code"`
		Message   string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if envelope.ErrorCode != "" {
		return nil, fmt.Errorf("%s: %s", envelope.ErrorCode, envelope.Message)
	}
	return envelope.Data, nil
}

func printJSON(data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	addr, token := commonFlags(fs)
	password := fs.String("password", os.Getenv("PN_PASSWORD"), "node password")
	fs.Parse(args)

	data, err := newClient(*addr, *token).do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"password": *password,
	})
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdCreateInvoice(args []string) error {
	fs := flag.NewFlagSet("create-invoice", flag.ExitOnError)
	addr, token := commonFlags(fs)
	amount := fs.Int64("amount-msat", 0, "invoice amount in millisatoshi")
	desc := fs.String("description", "", "invoice description")
	fs.Parse(args)

	data, err := newClient(*addr, *token).do(http.MethodPost, "/api/v1/invoices", map[string]any{
		"amount_msat": *amount,
		"description": *desc,
	})
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdPay(args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	addr, token := commonFlags(fs)
	request := fs.String("request", "", "payment request to pay")
	amount := fs.Int64("amount-msat", 0, "amount override (required for zero-amount invoices)")
	fs.Parse(args)

	body := map[string]any{"payment_request": *request}
	if *amount > 0 {
		body["amount_msat"] = *amount
	}

	data, err := newClient(*addr, *token).do(http.MethodPost, "/api/v1/payments", body)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdGetPayment(args []string) error {
	fs := flag.NewFlagSet("get-payment", flag.ExitOnError)
	addr, token := commonFlags(fs)
	id := fs.String("id", "", "payment id")
	fs.Parse(args)

	data, err := newClient(*addr, *token).do(http.MethodGet, "/api/v1/payments/"+*id, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdListPayments(args []string) error {
	fs := flag.NewFlagSet("list-payments", flag.ExitOnError)
	addr, token := commonFlags(fs)
	status := fs.String("status", "", "filter: pending, succeeded, failed")
	direction := fs.String("direction", "", "filter: incoming, outgoing")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	fs.Parse(args)

	path := fmt.Sprintf("/api/v1/payments?page=%d&page_size=%d", *page, *pageSize)
	if *status != "" {
		path += "&status=" + *status
	}
	if *direction != "" {
		path += "&direction=" + *direction
	}

	data, err := newClient(*addr, *token).do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	addr, token := commonFlags(fs)
	from := fs.Int64("from", 0, "start sequence")
	limit := fs.Int("limit", 100, "max events")
	fs.Parse(args)

	path := fmt.Sprintf("/api/v1/events?from_sequence=%d&limit=%d", *from, *limit)
	data, err := newClient(*addr, *token).do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdWebhookAdd(args []string) error {
	fs := flag.NewFlagSet("webhook-add", flag.ExitOnError)
	addr, token := commonFlags(fs)
	url := fs.String("url", "", "endpoint URL")
	secret := fs.String("secret", "", "HMAC secret (generated when empty)")
	kinds := fs.String("kinds", "", "comma-separated event kinds (empty = all)")
	fs.Parse(args)

	body := map[string]any{"url": *url}
	if *secret != "" {
		body["secret"] = *secret
	}
	if *kinds != "" {
		body["subscribed_kinds"] = strings.Split(*kinds, ",")
	}

	data, err := newClient(*addr, *token).do(http.MethodPost, "/api/v1/webhooks", body)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdWebhookList(args []string) error {
	fs := flag.NewFlagSet("webhook-list", flag.ExitOnError)
	addr, token := commonFlags(fs)
	fs.Parse(args)

	data, err := newClient(*addr, *token).do(http.MethodGet, "/api/v1/webhooks", nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdWebhookRemove(args []string) error {
	fs := flag.NewFlagSet("webhook-rm", flag.ExitOnError)
	addr, token := commonFlags(fs)
	id := fs.String("id", "", "endpoint id")
	fs.Parse(args)

	data, err := newClient(*addr, *token).do(http.MethodDelete, "/api/v1/webhooks/"+*id, nil)
	if err != nil {
		return err
	}
	return printJSON(data)
}
