package clientcmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewLedgerCommand builds the `ledger` command group talking to a running
// ledgerd over HTTP.
func NewLedgerCommand(apiURL func() string) *cobra.Command {
	s := &session{apiURL: apiURL}

	cmd := &cobra.Command{Use: "ledger", Short: "Ledger operations"}
	cmd.PersistentFlags().StringVar(&s.identity, "identity", "", "Identity for dev-mode requests")
	cmd.PersistentFlags().BoolVar(&s.admin, "admin", false, "Claim admin standing (dev mode)")
	cmd.PersistentFlags().StringVar(&s.token, "token", "", "Bearer token")

	cmd.AddCommand(
		newAppendCmd(s),
		newListCmd(s),
		newGetCmd(s),
		newTailCmd(s),
		newVerifyCmd(s),
		newWatchCmd(s),
		newAckCmd(s),
		newTypesCmd(s),
	)
	return cmd
}

func newAppendCmd(s *session) *cobra.Command {
	var typ, payload, idemKey string
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one event to the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]interface{}{
				"type":           typ,
				"payload":        json.RawMessage(payload),
				"idempotencyKey": idemKey,
			})
			if err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			var out map[string]interface{}
			if err := s.doJSON("POST", "/v1/ledger/append", bytes.NewReader(body), &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "Event type (e.g. DATASET_CREATED)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "Event payload as JSON")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Dedupe key for retried appends")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newListCmd(s *session) *cobra.Command {
	var from uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List committed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			path := fmt.Sprintf("/v1/ledger/entries?from=%d&limit=%d", from, limit)
			if err := s.doJSON("GET", path, nil, &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First sequence to return")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries")
	return cmd
}

func newGetCmd(s *session) *cobra.Command {
	var seq uint64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch one entry by sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := s.doJSON("GET", fmt.Sprintf("/v1/ledger/entries?seq=%d", seq), nil, &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seq, "seq", 0, "Sequence number")
	return cmd
}

func newTailCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Show the last committed entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := s.doJSON("GET", "/v1/ledger/tail", nil, &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

func newVerifyCmd(s *session) *cobra.Command {
	var from, to int64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify the hash chain end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				OK      bool    `json:"ok"`
				Entries uint64  `json:"entries"`
				BadSeq  *uint64 `json:"badSeq"`
				Reason  string  `json:"reason"`
			}
			path := "/v1/ledger/verify"
			q := url.Values{}
			if from >= 0 {
				q.Set("from", strconv.FormatInt(from, 10))
			}
			if to >= 0 {
				q.Set("to", strconv.FormatInt(to, 10))
			}
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			if err := s.doJSON("GET", path, nil, &out); err != nil {
				return err
			}
			printJSON(out)
			if !out.OK {
				return fmt.Errorf("chain corrupt at sequence %d: %s", *out.BadSeq, out.Reason)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&from, "from", -1, "first sequence to verify")
	cmd.Flags().Int64Var(&to, "to", -1, "last sequence to verify")
	return cmd
}

func newWatchCmd(s *session) *cobra.Command {
	var from int64
	var filter string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream entries (backfill, then live) to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if from >= 0 {
				q.Set("from", fmt.Sprintf("%d", from))
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if s.identity != "" {
				q.Set("identity", s.identity)
			}
			if s.admin {
				q.Set("admin", "true")
			}
			resp, err := s.do("GET", "/v1/ledger/subscribe?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("subscribe failed: %s", resp.Status)
			}
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 64<<10), 4<<20)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "data: ") {
					fmt.Println(strings.TrimPrefix(line, "data: "))
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().Int64Var(&from, "from", -1, "Resume from this sequence instead of the stored watermark")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter expression")
	return cmd
}

func newAckCmd(s *session) *cobra.Command {
	var seq uint64
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge delivery through a sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := bytes.NewReader([]byte(fmt.Sprintf(`{"sequence":%d}`, seq)))
			return s.doJSON("POST", "/v1/ledger/ack", body, nil)
		},
	}
	cmd.Flags().Uint64Var(&seq, "seq", 0, "Highest processed sequence")
	return cmd
}

func newTypesCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the declared event taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := s.doJSON("GET", "/v1/ledger/types", nil, &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}
