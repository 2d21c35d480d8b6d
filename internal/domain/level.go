package domain

import (
	"math"
	"sort"
	"strings"
)

// LevelTag identifica el origen de un nivel de liquidez.
type LevelTag string

const (
	TagEQH   LevelTag = "EQH"
	TagEQL   LevelTag = "EQL"
	TagORBH  LevelTag = "ORB_H"
	TagORBL  LevelTag = "ORB_L"
	TagRNGH  LevelTag = "RNG_H"
	TagRNGL  LevelTag = "RNG_L"
	TagFVG   LevelTag = "FVG"
	TagFig   LevelTag = "FIG"
	TagVWAPU LevelTag = "VWAP_U"
	TagVWAPL LevelTag = "VWAP_L"
	TagPDH   LevelTag = "PDH"
	TagPDL   LevelTag = "PDL"
	TagPWH   LevelTag = "PWH"
	TagPWL   LevelTag = "PWL"
	TagPMH   LevelTag = "PMH"
	TagPML   LevelTag = "PML"
)

// SessionHigh / SessionLow build the tags for a named session's extremes.
func SessionHigh(name string) LevelTag { return LevelTag(strings.ToUpper(name) + "_H") }
func SessionLow(name string) LevelTag  { return LevelTag(strings.ToUpper(name) + "_L") }

// LiquidityLevel es un precio que actúa como imán de liquidez.
// Se reconstruye en cada ciclo y nunca se persiste.
type LiquidityLevel struct {
	Price  float64
	Weight float64
	Tag    LevelTag
}

// ClusterLevels agrupa niveles ordenados por precio cuyos vecinos consecutivos
// están dentro de tolBps. El representante es el miembro más cercano a la
// media del cluster; el peso es el máximo del cluster y el tag es el del
// miembro más pesado.
func ClusterLevels(levels []LiquidityLevel, tolBps float64) []LiquidityLevel {
	if len(levels) == 0 {
		return nil
	}
	s := append([]LiquidityLevel(nil), levels...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Price < s[j].Price })

	var out []LiquidityLevel
	group := []LiquidityLevel{s[0]}
	flush := func() {
		out = append(out, representative(group))
	}
	for _, lv := range s[1:] {
		if WithinBps(lv.Price, group[len(group)-1].Price, tolBps) {
			group = append(group, lv)
			continue
		}
		flush()
		group = []LiquidityLevel{lv}
	}
	flush()
	return out
}

func representative(group []LiquidityLevel) LiquidityLevel {
	mean := 0.0
	for _, g := range group {
		mean += g.Price
	}
	mean /= float64(len(group))

	rep := group[0]
	heaviest := group[0]
	for _, g := range group[1:] {
		d, dr := math.Abs(g.Price-mean), math.Abs(rep.Price-mean)
		if d < dr || (d == dr && g.Weight > rep.Weight) {
			rep = g
		}
		if g.Weight > heaviest.Weight {
			heaviest = g
		}
	}
	return LiquidityLevel{Price: rep.Price, Weight: heaviest.Weight, Tag: heaviest.Tag}
}

// TopK conserva los k niveles de mayor peso (empates por cercanía a ref) y
// los devuelve ordenados del más cercano al más lejano a ref.
func TopK(levels []LiquidityLevel, k int, ref float64) []LiquidityLevel {
	s := append([]LiquidityLevel(nil), levels...)
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Weight != s[j].Weight {
			return s[i].Weight > s[j].Weight
		}
		return math.Abs(s[i].Price-ref) < math.Abs(s[j].Price-ref)
	})
	if k > 0 && len(s) > k {
		s = s[:k]
	}
	sort.SliceStable(s, func(i, j int) bool {
		return math.Abs(s[i].Price-ref) < math.Abs(s[j].Price-ref)
	})
	return s
}

// SplitBySide assigns each level strictly to one side of last price.
// Levels exactly at last price belong to neither list.
func SplitBySide(levels []LiquidityLevel, last float64) (above, below []LiquidityLevel) {
	for _, lv := range levels {
		switch {
		case lv.Price > last:
			above = append(above, lv)
		case lv.Price < last:
			below = append(below, lv)
		}
	}
	return above, below
}
