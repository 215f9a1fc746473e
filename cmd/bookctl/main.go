// bookctl is an operator CLI for a running wagerbook server. It renders
// market state, the liquidity book, and order lists as tables, and can
// turn the matching crank.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/openwager/wagerbook/internal/domain"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Base URL of the wagerbook server")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "market":
		err = requireArg(args, 2, func() error { return showMarket(*addr, args[1]) })
	case "book":
		err = requireArg(args, 2, func() error { return showBook(*addr, args[1]) })
	case "orders":
		err = requireArg(args, 2, func() error { return showOrders(*addr, args[1]) })
	case "crank":
		err = requireArg(args, 2, func() error { return crank(*addr, args[1]) })
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: bookctl [-addr URL] <command> <market_id>

Commands:
  market <market_id>   Show market status and counters
  book <market_id>     Show the aggregated liquidity book
  orders <market_id>   List the market's orders
  crank <market_id>    Drain pending matching-queue entries`)
}

func requireArg(args []string, n int, fn func() error) error {
	if len(args) < n {
		usage()
		os.Exit(2)
	}
	return fn()
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func postJSON(url string, body string, v any) error {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %s: %s", url, resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type marketView struct {
	MarketID          string   `json:"market_id"`
	Title             string   `json:"title"`
	Status            string   `json:"status"`
	OutcomeTitles     []string `json:"outcome_titles"`
	WinningOutcome    *int     `json:"winning_outcome"`
	UnsettledCount    int      `json:"unsettled_count"`
	UnclosedCount     int      `json:"unclosed_count"`
	StakeMatchedTotal int64    `json:"stake_matched_total"`
}

func showMarket(addr, marketID string) error {
	var m marketView
	if err := getJSON(addr+"/markets/"+marketID, &m); err != nil {
		return err
	}
	fmt.Printf("%s  [%s]\n", m.Title, m.Status)
	winner := "-"
	if m.WinningOutcome != nil {
		winner = m.OutcomeTitles[*m.WinningOutcome]
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Outcomes", "Winner", "Matched total", "Unsettled", "Unclosed")
	table.Append(
		strings.Join(m.OutcomeTitles, " / "),
		winner,
		cents(m.StakeMatchedTotal),
		fmt.Sprintf("%d", m.UnsettledCount),
		fmt.Sprintf("%d", m.UnclosedCount),
	)
	table.Render()
	return nil
}

type bookView struct {
	ForSide []struct {
		Outcome int     `json:"outcome"`
		Price   float64 `json:"price"`
		Stake   int64   `json:"stake"`
		Sources []struct {
			Outcome int     `json:"outcome"`
			Price   float64 `json:"price"`
		} `json:"sources"`
	} `json:"for"`
	AgainstSide []struct {
		Outcome int     `json:"outcome"`
		Price   float64 `json:"price"`
		Stake   int64   `json:"stake"`
		Sources []struct {
			Outcome int     `json:"outcome"`
			Price   float64 `json:"price"`
		} `json:"sources"`
	} `json:"against"`
	QueueLen int   `json:"queue_len"`
	Escrow   int64 `json:"escrow"`
}

func showBook(addr, marketID string) error {
	var b bookView
	if err := getJSON(addr+"/markets/"+marketID+"/book", &b); err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Side", "Outcome", "Price", "Stake", "Sources")
	for _, lvl := range b.ForSide {
		var srcs []string
		for _, s := range lvl.Sources {
			srcs = append(srcs, fmt.Sprintf("%d@%.3f", s.Outcome, s.Price))
		}
		table.Append("for", fmt.Sprintf("%d", lvl.Outcome), fmt.Sprintf("%.3f", lvl.Price), cents(lvl.Stake), strings.Join(srcs, " "))
	}
	for _, lvl := range b.AgainstSide {
		var srcs []string
		for _, s := range lvl.Sources {
			srcs = append(srcs, fmt.Sprintf("%d@%.3f", s.Outcome, s.Price))
		}
		table.Append("against", fmt.Sprintf("%d", lvl.Outcome), fmt.Sprintf("%.3f", lvl.Price), cents(lvl.Stake), strings.Join(srcs, " "))
	}
	table.Render()
	fmt.Printf("queue: %d pending  escrow: %s\n", b.QueueLen, cents(b.Escrow))
	return nil
}

type orderView struct {
	OrderID        string  `json:"order_id"`
	PurchaserID    string  `json:"purchaser_id"`
	Outcome        int     `json:"outcome"`
	Side           string  `json:"side"`
	Price          float64 `json:"price"`
	StakeUnmatched int64   `json:"stake_unmatched"`
	StakeMatched   int64   `json:"stake_matched"`
	Status         string  `json:"status"`
}

func showOrders(addr, marketID string) error {
	var orders []orderView
	if err := getJSON(addr+"/markets/"+marketID+"/orders", &orders); err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Order", "Purchaser", "Outcome", "Side", "Price", "Unmatched", "Matched", "Status")
	for _, o := range orders {
		table.Append(
			o.OrderID[:8],
			o.PurchaserID,
			fmt.Sprintf("%d", o.Outcome),
			o.Side,
			fmt.Sprintf("%.3f", o.Price),
			cents(o.StakeUnmatched),
			cents(o.StakeMatched),
			o.Status,
		)
	}
	table.Render()
	return nil
}

func crank(addr, marketID string) error {
	var res struct {
		Processed int `json:"processed"`
		Dropped   int `json:"dropped"`
	}
	if err := postJSON(addr+"/markets/"+marketID+"/crank", `{"max_entries": 0}`, &res); err != nil {
		return err
	}
	fmt.Printf("processed: %d  dropped: %d\n", res.Processed, res.Dropped)
	return nil
}

func cents(v int64) string {
	return fmt.Sprintf("%.2f", domain.CentsToDollars(v))
}
