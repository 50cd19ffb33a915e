package chat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/bobmcallan/mfdesk/internal/common"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200

	// maxDocumentChars bounds text taken from one file.
	maxDocumentChars = 500000
)

// chunk is a slice of one document with its lowercased term set.
type chunk struct {
	source string
	text   string
	terms  map[string]struct{}
}

// KnowledgeBase is an in-memory set of document chunks searched by term overlap.
// It is read-only after loading and safe for concurrent use.
type KnowledgeBase struct {
	chunks []chunk
}

// LoadKnowledgeBase reads every .txt, .md and .pdf file directly under dir.
// A missing directory yields an empty knowledge base. Unreadable files are
// logged and skipped.
func LoadKnowledgeBase(dir string, logger *common.Logger) (*KnowledgeBase, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	kb := &KnowledgeBase{}
	if dir == "" {
		return kb, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("dir", dir).Msg("Knowledge directory not found, chat answers from the greeting only")
			return kb, nil
		}
		return nil, fmt.Errorf("failed to read knowledge directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())

		var text string
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			text, err = readTextFile(path)
			if err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("Skipping knowledge file")
				continue
			}
		case ".pdf":
			text, err = extractPDFText(path)
			if err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("Skipping knowledge PDF")
				continue
			}
		default:
			continue
		}

		before := len(kb.chunks)
		kb.Add(e.Name(), text)
		logger.Debug().Str("file", e.Name()).Int("chunks", len(kb.chunks)-before).Msg("Knowledge file loaded")
	}

	logger.Info().Str("dir", dir).Int("chunks", len(kb.chunks)).Msg("Knowledge base loaded")
	return kb, nil
}

// Add splits text into overlapping chunks attributed to source.
func (kb *KnowledgeBase) Add(source, text string) {
	for _, c := range splitChunks(text, chunkSize, chunkOverlap) {
		kb.chunks = append(kb.chunks, chunk{source: source, text: c, terms: termSet(c)})
	}
}

// Len returns the number of chunks.
func (kb *KnowledgeBase) Len() int {
	if kb == nil {
		return 0
	}
	return len(kb.chunks)
}

// Search returns up to k chunk texts sharing the most distinct terms with
// query, best first. Chunks sharing no term are never returned.
func (kb *KnowledgeBase) Search(query string, k int) []string {
	if kb.Len() == 0 || k <= 0 {
		return nil
	}
	q := termSet(query)
	if len(q) == 0 {
		return nil
	}

	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, c := range kb.chunks {
		score := 0
		for t := range q {
			if _, ok := c.terms[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = kb.chunks[h.idx].text
	}
	return out
}

// splitChunks cuts text into pieces of at most size runes, each starting
// overlap runes before the previous end. Cuts prefer the last whitespace in
// the second half of a window.
func splitChunks(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		start = max(end-overlap, start+1)
	}
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "with": {}, "that": {},
	"this": {}, "what": {}, "how": {}, "can": {}, "you": {}, "your": {}, "from": {},
	"about": {}, "which": {}, "when": {}, "does": {}, "into": {}, "have": {}, "has": {},
	"will": {}, "should": {}, "would": {}, "tell": {}, "please": {}, "there": {},
}

// termSet lowercases text and keeps alphanumeric words of 3+ characters
// that are not stop words.
func termSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		terms[w] = struct{}{}
	}
	return terms
}

// readTextFile returns at most maxDocumentChars bytes of the file.
func readTextFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDocumentChars))
	if err != nil {
		return "", err
	}
	return capText(string(data)), nil
}

// capText truncates text to maxDocumentChars bytes without splitting a rune.
func capText(text string) string {
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}
	return strings.ToValidUTF8(text, "")
}

// extractPDFText returns the plain text of every readable page.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() > maxDocumentChars {
			break
		}
	}
	return capText(sb.String()), nil
}
