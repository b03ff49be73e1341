package pdflayout

import (
	"log/slog"
	"math"
)

// MarginConfig tunes header/footer detection. The zero value is usable.
type MarginConfig struct {
	// TopDefault and BottomDefault are the static fallback ratios used when
	// no repeating header or footer is found. Default: 0.1 each.
	TopDefault    float64
	BottomDefault float64

	// Similarity is the normalized Levenshtein similarity above which two
	// line texts are considered the same repeating element. Default: 0.85.
	Similarity float64

	// Coverage is the minimum fraction of pages a repeating element must
	// appear on. Default: 0.4.
	Coverage float64

	// Slots is how many line positions from each page edge are examined.
	// Default: 3.
	Slots int

	// Cap bounds the detected margin ratio. Default: 0.3.
	Cap float64

	Logger *slog.Logger
}

func (c *MarginConfig) defaults() {
	if c.TopDefault == 0 {
		c.TopDefault = 0.1
	}
	if c.BottomDefault == 0 {
		c.BottomDefault = 0.1
	}
	if c.Similarity == 0 {
		c.Similarity = 0.85
	}
	if c.Coverage == 0 {
		c.Coverage = 0.4
	}
	if c.Slots == 0 {
		c.Slots = 3
	}
	if c.Cap == 0 {
		c.Cap = 0.3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MarginProfile is the outcome of margin detection. Ratios are fractions of
// the page height to exclude from the top and bottom of every page.
type MarginProfile struct {
	TopRatio    float64
	BottomRatio float64
	// TopDetected and BottomDetected report whether the ratio came from a
	// repeating element or from the static default.
	TopDetected    bool
	BottomDetected bool
}

// slotEntry is one page's line at a fixed slot position from a page edge.
type slotEntry struct {
	page Page
	text string
	// y is the cut extent: line bottom for headers, line top for footers.
	y float64
}

// DetectMargins scans every page for lines that repeat near the top or
// bottom edge and derives crop ratios from them. It never fails: when no
// repeating element reaches the coverage threshold the static defaults are
// returned. Running it on already-detected input yields the same profile.
func DetectMargins(pages []Page, cfg MarginConfig) MarginProfile {
	cfg.defaults()
	prof := MarginProfile{TopRatio: cfg.TopDefault, BottomRatio: cfg.BottomDefault}
	if len(pages) == 0 {
		return prof
	}

	topSlots := make([][]slotEntry, cfg.Slots)
	botSlots := make([][]slotEntry, cfg.Slots)
	for _, pg := range pages {
		tol := pg.AvgCharHeight() * 0.2
		if tol <= 0 {
			tol = 3.0
		}
		lines := BuildLines(pg.Chars, tol)
		var nonEmpty []Line
		for _, l := range lines {
			if l.Text != "" {
				nonEmpty = append(nonEmpty, l)
			}
		}
		// A header candidate must sit in the top half of the page and a
		// footer candidate in the bottom half, so short pages cannot feed
		// the same line to both edges.
		for k := 0; k < cfg.Slots && k < len(nonEmpty); k++ {
			if l := nonEmpty[k]; l.Bottom <= pg.Height*0.5 {
				topSlots[k] = append(topSlots[k], slotEntry{page: pg, text: l.Text, y: l.Bottom})
			}
			if lb := nonEmpty[len(nonEmpty)-1-k]; lb.Top >= pg.Height*0.5 {
				botSlots[k] = append(botSlots[k], slotEntry{page: pg, text: lb.Text, y: lb.Top})
			}
		}
	}

	if ratio, ok := bestMargin(topSlots, len(pages), cfg, false); ok {
		prof.TopRatio = ratio
		prof.TopDetected = true
	}
	if ratio, ok := bestMargin(botSlots, len(pages), cfg, true); ok {
		prof.BottomRatio = ratio
		prof.BottomDetected = true
	}

	cfg.Logger.Debug("margin detection",
		"top_ratio", prof.TopRatio, "bottom_ratio", prof.BottomRatio,
		"top_detected", prof.TopDetected, "bottom_detected", prof.BottomDetected)
	return prof
}

// bestMargin picks the highest-scoring repeating element across the slots
// and converts it to a crop ratio. Score favours high page coverage and a
// stable vertical position.
func bestMargin(slots [][]slotEntry, pageCount int, cfg MarginConfig, bottom bool) (float64, bool) {
	bestScore := -1.0
	var best []slotEntry
	for _, entries := range slots {
		cluster := dominantCluster(entries, cfg.Similarity)
		coverage := float64(len(cluster)) / float64(pageCount)
		if coverage < cfg.Coverage {
			continue
		}
		score := coverage * (1 / (1 + stddev(ys(cluster))))
		if score > bestScore {
			bestScore = score
			best = cluster
		}
	}
	if best == nil {
		return 0, false
	}

	var sum float64
	for _, e := range best {
		pad := math.Max(0.01*e.page.Height, 10)
		var ratio float64
		if bottom {
			ratio = (e.page.Height - e.y + pad) / e.page.Height
		} else {
			ratio = (e.y + pad) / e.page.Height
		}
		sum += ratio
	}
	ratio := sum / float64(len(best))
	if ratio > cfg.Cap {
		ratio = cfg.Cap
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio, true
}

// dominantCluster greedily groups entries by text similarity and returns
// the largest group.
func dominantCluster(entries []slotEntry, threshold float64) []slotEntry {
	var clusters [][]slotEntry
	for _, e := range entries {
		placed := false
		for i, cl := range clusters {
			if Similarity(e.text, cl[0].text) > threshold {
				clusters[i] = append(cl, e)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []slotEntry{e})
		}
	}
	var best []slotEntry
	for _, cl := range clusters {
		if len(cl) > len(best) {
			best = cl
		}
	}
	if len(best) < 2 {
		return nil
	}
	return best
}

func ys(entries []slotEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.y
	}
	return out
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
