package matcher

import (
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
)

// FuzzyResult is C5's complete output.
type FuzzyResult struct {
	Matches       []domain.Match
	Suggestions   []domain.MatchSuggestion
	ResidualsGL   []domain.CanonicalTxn
	ResidualsBank []domain.CanonicalTxn
}

// MatchFuzzy blocks residuals by (amount bucket, date window), scores
// every within-block candidate pair, then greedily assigns matches in
// descending confidence order with epsilon-tie ambiguity suppression.
func MatchFuzzy(residualGL, residualBank []domain.CanonicalTxn, cfg *reconconfig.Config) FuzzyResult {
	log := obslog.WithComponent("fuzzy_matcher")

	eligibleGL, skippedGL := partitionByQualityGate(residualGL, cfg.MinQualityForFuzzy)
	eligibleBank, skippedBank := partitionByQualityGate(residualBank, cfg.MinQualityForFuzzy)

	blocks := buildBlocks(eligibleGL, eligibleBank, cfg)
	candidates := scoreBlocks(blocks, cfg)

	matches, suggestions, usedGL, usedBank := assignCandidates(candidates, cfg)

	result := FuzzyResult{
		Matches:     matches,
		Suggestions: suggestions,
	}
	result.ResidualsGL = append(result.ResidualsGL, skippedGL...)
	result.ResidualsBank = append(result.ResidualsBank, skippedBank...)
	for _, t := range eligibleGL {
		if !usedGL[t.TxnID] {
			result.ResidualsGL = append(result.ResidualsGL, t)
		}
	}
	for _, t := range eligibleBank {
		if !usedBank[t.TxnID] {
			result.ResidualsBank = append(result.ResidualsBank, t)
		}
	}

	log.WithField("matches", len(matches)).
		WithField("suggestions", len(suggestions)).
		Debug("completed fuzzy matching")
	return result
}

func partitionByQualityGate(txns []domain.CanonicalTxn, minQuality float64) (eligible, skipped []domain.CanonicalTxn) {
	for _, t := range txns {
		if t.Quality.Overall < minQuality {
			skipped = append(skipped, t)
		} else {
			eligible = append(eligible, t)
		}
	}
	return eligible, skipped
}

type block struct {
	key  string
	gl   []domain.CanonicalTxn
	bank []domain.CanonicalTxn
}

func blockKeyOf(t domain.CanonicalTxn, amountBucket float64, dateWindowDays int) string {
	// Bank amounts carry the opposite sign to GL amounts for the same
	// economic movement (as in amountDateKey), so the Bank side is
	// sign-inverted before bucketing to land in the same block as its
	// GL counterpart.
	signed := t.Amount
	if t.Source == domain.RoleBank {
		signed = signed.Neg()
	}
	amountBucketKey := roundedAmountKey(signed, amountBucket)
	epochDays := t.Date.Unix() / 86400
	dateBucket := epochDays
	if dateWindowDays > 0 {
		dateBucket = epochDays / int64(dateWindowDays)
	}
	return amountBucketKey + "|" + itoa(dateBucket)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func buildBlocks(gl, bank []domain.CanonicalTxn, cfg *reconconfig.Config) []block {
	blocks := make(map[string]*block)
	order := []string{}
	for _, t := range gl {
		key := blockKeyOf(t, cfg.FuzzyAmountBucket, cfg.FuzzyDateWindowDays)
		b, ok := blocks[key]
		if !ok {
			b = &block{key: key}
			blocks[key] = b
			order = append(order, key)
		}
		b.gl = append(b.gl, t)
	}
	for _, t := range bank {
		key := blockKeyOf(t, cfg.FuzzyAmountBucket, cfg.FuzzyDateWindowDays)
		b, ok := blocks[key]
		if !ok {
			b = &block{key: key}
			blocks[key] = b
			order = append(order, key)
		}
		b.bank = append(b.bank, t)
	}

	sort.Strings(order)
	out := make([]block, 0, len(order))
	for _, k := range order {
		b := blocks[k]
		if len(b.gl) > 0 && len(b.bank) > 0 {
			out = append(out, *b)
		}
	}
	return out
}

// candidate is a scored GL/Bank pairing before assignment.
type candidate struct {
	gl, bank   domain.CanonicalTxn
	confidence float64
}

// scoreBlocks scores every candidate pair, one bounded worker per
// block via sourcegraph/conc/pool. Each worker's output is keyed by
// its block's position in the input order and merged back in that
// order after every worker completes, so the result is independent of
// goroutine scheduling.
func scoreBlocks(blocks []block, cfg *reconconfig.Config) []candidate {
	results := make([][]candidate, len(blocks))

	p := pool.New().WithMaxGoroutines(8)
	for i, b := range blocks {
		i, b := i, b
		p.Go(func() {
			results[i] = scoreBlock(b, cfg)
		})
	}
	p.Wait()

	var all []candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func scoreBlock(b block, cfg *reconconfig.Config) []candidate {
	out := make([]candidate, 0, len(b.gl)*len(b.bank))
	for _, g := range b.gl {
		for _, bk := range b.bank {
			out = append(out, candidate{gl: g, bank: bk, confidence: score(g, bk, cfg)})
		}
	}
	return out
}

func score(gl, bank domain.CanonicalTxn, cfg *reconconfig.Config) float64 {
	amountScale := 1.0
	if cfg.FuzzyAmountBucket > 0 {
		amountScale = cfg.FuzzyAmountBucket
	}
	sumF, _ := gl.Amount.Add(bank.Amount).Float64()
	amountScore := 1 - min1(absF(sumF)/amountScale)

	dateScale := float64(cfg.FuzzyDateWindowDays)
	if dateScale <= 0 {
		dateScale = 1
	}
	deltaDays := absF(float64(gl.Date.Sub(bank.Date).Hours() / 24))
	dateScore := max0(1 - deltaDays/dateScale)

	descScore := descriptionSimilarity(gl.Description, bank.Description)
	refScore := referenceSimilarity(gl.Reference, bank.Reference)

	w := cfg.FuzzyWeights
	return w.Amount*amountScore + w.Date*dateScore + w.Description*descScore + w.Reference*refScore
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func min1(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}

func max0(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

// referenceSimilarity: 1 if both non-empty and equal, 0.5 if either
// (or both) is empty, else partial similarity via description_score's
// metric.
func referenceSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0.5
	}
	if a == "" || b == "" {
		return 0.5
	}
	if a == b {
		return 1
	}
	return descriptionSimilarity(a, b)
}

// descriptionSimilarity is a symmetric, [0,1]-bounded, edit-distance
// monotonic string similarity: 1 − levenshtein(a,b) / max(len(a),len(b)).
// No third-party string-similarity library is used anywhere in the
// corpus this module was built from, so this is implemented directly.
func descriptionSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(minInt(curr[j-1]+1, prev[j]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// assignCandidates greedily assigns matches in descending confidence
// order, one txn consumed per side at most once. If the top two
// remaining candidates for any txn are within confidence_epsilon of
// each other, neither is accepted; both are emitted as suggestions and
// every txn involved in the tie (both sides of both candidates) is
// rejected for the rest of the pass, not just for that one comparison —
// otherwise a third, slightly lower candidate for the same txn (itself
// within epsilon of the second) would never be compared against
// anything "ahead" of it and would wrongly sail through as a Match
// (spec.md §4.5's ambiguity policy requires the txn to stay a residual
// permanently, not just for one round of comparison).
func assignCandidates(candidates []candidate, cfg *reconconfig.Config) (
	matches []domain.Match, suggestions []domain.MatchSuggestion, usedGL, usedBank map[string]bool,
) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		if candidates[i].gl.TxnID != candidates[j].gl.TxnID {
			return candidates[i].gl.TxnID < candidates[j].gl.TxnID
		}
		return candidates[i].bank.TxnID < candidates[j].bank.TxnID
	})

	usedGL = make(map[string]bool)
	usedBank = make(map[string]bool)
	rejectedGL := make(map[string]bool)
	rejectedBank := make(map[string]bool)
	suggested := make(map[string]bool) // "glID|bankID" already emitted as a suggestion

	for i, c := range candidates {
		if usedGL[c.gl.TxnID] || usedBank[c.bank.TxnID] || rejectedGL[c.gl.TxnID] || rejectedBank[c.bank.TxnID] {
			continue
		}
		if c.confidence < cfg.FuzzyReviewRequiredThreshold {
			continue
		}

		if c.confidence >= cfg.FuzzyAutoMatchThreshold {
			if tied := findTieWithin(candidates, i, cfg.FuzzyConfidenceEpsilon, usedGL, usedBank, rejectedGL, rejectedBank); tied != nil {
				emitSuggestion(&suggestions, suggested, c)
				emitSuggestion(&suggestions, suggested, *tied)
				rejectedGL[c.gl.TxnID] = true
				rejectedBank[c.bank.TxnID] = true
				rejectedGL[tied.gl.TxnID] = true
				rejectedBank[tied.bank.TxnID] = true
				continue
			}
			matches = append(matches, domain.Match{
				GLTxnID: c.gl.TxnID, BankTxnID: c.bank.TxnID,
				Strategy: "fuzzy", Confidence: c.confidence,
				TolerancesApplied: map[string]float64{},
			})
			usedGL[c.gl.TxnID] = true
			usedBank[c.bank.TxnID] = true
			continue
		}

		emitSuggestion(&suggestions, suggested, c)
	}

	return matches, suggestions, usedGL, usedBank
}

// findTieWithin looks ahead from position i for another unconsumed,
// unrejected candidate sharing either txn with candidates[i] and within
// epsilon confidence of it.
func findTieWithin(candidates []candidate, i int, epsilon float64, usedGL, usedBank, rejectedGL, rejectedBank map[string]bool) *candidate {
	c := candidates[i]
	for j := i + 1; j < len(candidates); j++ {
		other := candidates[j]
		if c.confidence-other.confidence > epsilon {
			break
		}
		if usedGL[other.gl.TxnID] || usedBank[other.bank.TxnID] || rejectedGL[other.gl.TxnID] || rejectedBank[other.bank.TxnID] {
			continue
		}
		if other.gl.TxnID == c.gl.TxnID || other.bank.TxnID == c.bank.TxnID {
			return &other
		}
	}
	return nil
}

func emitSuggestion(suggestions *[]domain.MatchSuggestion, seen map[string]bool, c candidate) {
	key := c.gl.TxnID + "|" + c.bank.TxnID
	if seen[key] {
		return
	}
	seen[key] = true
	*suggestions = append(*suggestions, domain.MatchSuggestion{
		GLTxnID: c.gl.TxnID, BankTxnID: c.bank.TxnID, Confidence: c.confidence, Strategy: "fuzzy",
	})
}
