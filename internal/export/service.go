// Package export bundles a community's executed disbursements with their
// downloaded proof documents for audit.
package export

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

// Item is one executed transaction with the local path of its proof, if any.
type Item struct {
	Transaction *treasury.Transaction
	FilePath    string
}

type Ledger interface {
	GetCommunity(ctx context.Context, id uuid.UUID) (*treasury.Community, error)
	ListTransactions(ctx context.Context, filter treasury.TransactionFilter) ([]*treasury.Transaction, error)
}

type Service struct {
	ledger     Ledger
	client     *http.Client
	fetchToken string
}

// NewService creates an export service. fetchToken, when set, is sent with
// every proof download.
func NewService(ledger Ledger, fetchToken string) *Service {
	return &Service{
		ledger:     ledger,
		client:     &http.Client{Timeout: 30 * time.Second},
		fetchToken: fetchToken,
	}
}

// Export loads the community and its transactions, downloading every proof
// that is an http(s) URL into outputDir.
func (s *Service) Export(ctx context.Context, communityID uuid.UUID, outputDir string) (*treasury.Community, []Item, error) {
	community, err := s.ledger.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, nil, err
	}

	txs, err := s.ledger.ListTransactions(ctx, treasury.TransactionFilter{CommunityID: &communityID})
	if err != nil {
		return nil, nil, fmt.Errorf("listing transactions: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating output directory: %w", err)
	}

	items := make([]Item, 0, len(txs))

	for _, tx := range txs {
		item := Item{Transaction: tx}

		if isFetchable(tx.ProofRef) {
			path, err := s.downloadProof(ctx, tx, outputDir)
			if err != nil {
				return nil, nil, fmt.Errorf("downloading proof for transaction %s: %w", tx.ID, err)
			}

			item.FilePath = path
		}

		items = append(items, item)
	}

	return community, items, nil
}

func isFetchable(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

func (s *Service) downloadProof(ctx context.Context, tx *treasury.Transaction, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tx.ProofRef, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	if s.fetchToken != "" {
		req.Header.Set("Authorization", "Token "+s.fetchToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for url %s", resp.StatusCode, tx.ProofRef)
	}

	path := filepath.Join(dir, determineFilename(resp, tx))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	return path, nil
}

// determineFilename prefers the server supplied name and otherwise builds
// YYYYMMDD_<title>_<short id>.<ext>. The id suffix keeps names unique when
// two disbursements share a title and day.
func determineFilename(resp *http.Response, tx *treasury.Transaction) string {
	prefix := tx.ExecutedAt.Format("20060102") + "_" + tx.ID.String()[:8]

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if filename := params["filename"]; filename != "" {
				return prefix + "_" + strings.ReplaceAll(filepath.Base(filename), " ", "_")
			}
		}
	}

	ext := ".pdf"

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
			ext = exts[0]
		}
	}

	return prefix + "_" + safeName(tx.ProposalTitle) + ext
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}

		return '_'
	}, s)
}

// GenerateSummary renders a plain text audit report for the exported items.
func (s *Service) GenerateSummary(community *treasury.Community, items []Item) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Community: %s\n", community.Name)
	fmt.Fprintf(&sb, "Treasury: %s\n", community.TreasuryAddress)
	fmt.Fprintf(&sb, "Initial balance: %s\n", community.InitialBalance.StringFixed(2))
	fmt.Fprintf(&sb, "Current balance: %s\n\n", community.CurrentBalance.StringFixed(2))

	total := decimal.Zero

	for _, item := range items {
		tx := item.Transaction
		total = total.Add(tx.Amount)

		proof := "no proof"

		switch {
		case item.FilePath != "":
			proof = filepath.Base(item.FilePath)
		case tx.ProofRef != "":
			proof = tx.ProofRef
		}

		fmt.Fprintf(&sb, "* %s | %s | %s -> %s | %s\n",
			tx.ExecutedAt.Format("2006-01-02"),
			tx.ProposalTitle,
			tx.Amount.StringFixed(2),
			tx.RecipientAddress,
			proof,
		)
	}

	fmt.Fprintf(&sb, "\nDisbursed: %s in %d transaction(s)\n", total.StringFixed(2), len(items))

	return sb.String()
}
