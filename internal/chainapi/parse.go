package chainapi

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// parseTransactions extracts transactions from an explorer response.
//
// Two envelope shapes are accepted:
//
//	{"ok": true, "result": [ ... ]}          (address history)
//	{"transactions": [ ... ]}                (lookup by hash)
//
// Within each transaction the hash is read from "hash" or
// "transaction_id.hash", the timestamp from "utime" or "now", and the
// incoming message from "in_msg.value" / "in_msg.source". The source may
// be a plain string or an object with an "address" field.
func parseTransactions(body []byte) ([]Transaction, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed explorer response", ErrUnavailable)
	}
	root := gjson.ParseBytes(body)

	if ok := root.Get("ok"); ok.Exists() && !ok.Bool() {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, root.Get("error").String())
	}

	list := root.Get("result")
	if !list.IsArray() {
		list = root.Get("transactions")
	}
	if !list.IsArray() {
		return []Transaction{}, nil
	}

	var out []Transaction
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, parseTransaction(item))
		return true
	})
	if out == nil {
		out = []Transaction{}
	}
	return out, nil
}

func parseTransaction(item gjson.Result) Transaction {
	tx := Transaction{
		Hash:  firstString(item, "hash", "transaction_id.hash"),
		Value: item.Get("in_msg.value").Float(),
	}

	src := item.Get("in_msg.source")
	if src.IsObject() {
		tx.Sender = src.Get("address").String()
	} else {
		tx.Sender = src.String()
	}

	ts := item.Get("utime")
	if !ts.Exists() {
		ts = item.Get("now")
	}
	if ts.Exists() && ts.Int() > 0 {
		tx.Timestamp = time.Unix(ts.Int(), 0)
	}
	return tx
}

func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := item.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
