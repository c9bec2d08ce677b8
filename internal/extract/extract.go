// Package extract turns arbitrary achievement export JSON into a set of
// completed achievement IDs.
//
// Recognition is an ordered list of strategies; the first one that finds at
// least one ID decides the result. Strategies are pure functions of the
// parsed document.
package extract

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// SanityThreshold is the ID count below which an extraction is logged as
// suspicious. It is a warning, never a failure.
const SanityThreshold = 10

// LegacyAppName identifies exports from the cocogoat achievement tool.
const LegacyAppName = "椰羊成就"

// Strategy is one recognition rule.
type Strategy struct {
	Name  string
	Apply func(doc gjson.Result) (map[int]bool, bool)
}

// Result is the outcome of an extraction.
type Result struct {
	IDs map[int]bool
	// Strategy names the rule that matched, or "" when none did.
	Strategy string
}

// Sorted returns the IDs in ascending order.
func (r Result) Sorted() []int {
	return slices.Sorted(maps.Keys(r.IDs))
}

// DefaultStrategies returns the built-in rules in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "known-arrays", Apply: knownArrays},
		{Name: "legacy-export", Apply: legacyExport},
		{Name: "normalized-ids", Apply: normalizedIDs},
		{Name: "deep-scan", Apply: deepScan},
	}
}

// Extractor runs strategies in order.
type Extractor struct {
	strategies []Strategy
	log        logrus.FieldLogger
}

func New(log logrus.FieldLogger, strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{strategies: strategies, log: log}
}

// Extract never fails: input that is not JSON, or JSON no strategy
// recognizes, yields an empty set.
func (e *Extractor) Extract(raw []byte) Result {
	res := Result{IDs: map[int]bool{}}

	if !gjson.ValidBytes(raw) {
		e.log.Debug("extract: input is not valid JSON")
		return res
	}
	doc := gjson.ParseBytes(raw)

	// Share-code payloads sometimes carry the export as an encoded string.
	if doc.Type == gjson.String && gjson.Valid(doc.Str) {
		doc = gjson.Parse(doc.Str)
	}

	for _, s := range e.strategies {
		ids, ok := s.Apply(doc)
		if !ok || len(ids) == 0 {
			continue
		}
		res.IDs = ids
		res.Strategy = s.Name
		break
	}

	log := e.log.WithFields(logrus.Fields{"strategy": res.Strategy, "count": len(res.IDs)})
	if len(res.IDs) < SanityThreshold {
		log.Warn("extract: fewer IDs than expected")
	} else {
		log.Debug("extract: done")
	}
	return res
}

// knownArrayPaths are tried in order before any heuristics.
var knownArrayPaths = []string{
	"data.achievements",
	"list",
	"achievements",
	"value.achievements",
	"items",
	"records",
	"data.list",
	"content.achievements",
}

func knownArrays(doc gjson.Result) (map[int]bool, bool) {
	for _, path := range knownArrayPaths {
		if !doc.IsObject() {
			break
		}
		arr := doc.Get(path)
		if !arr.IsArray() {
			continue
		}
		if ids := unlockedEntries(arr); len(ids) > 0 {
			return ids, true
		}
	}

	if doc.IsArray() && firstIsObject(doc) {
		if ids := unlockedEntries(doc); len(ids) > 0 {
			return ids, true
		}
	}
	return nil, false
}

func legacyExport(doc gjson.Result) (map[int]bool, bool) {
	if !doc.IsObject() {
		return nil, false
	}

	var paths []string
	switch {
	case doc.Get("source").String() == LegacyAppName:
		paths = []string{"value.achievements", "achievements"}
	case doc.Get("info.app").String() == LegacyAppName:
		paths = []string{"achievements", "value.achievements"}
	case doc.Get("info.export_app").String() == "cocogoat":
		paths = []string{"list", "achievements"}
	default:
		return nil, false
	}

	for _, path := range paths {
		if arr := doc.Get(path); arr.IsArray() {
			if ids := unlockedEntries(arr); len(ids) > 0 {
				return ids, true
			}
		}
	}
	return nil, false
}

// idListFields name arrays of bare achievement IDs.
var idListFields = []string{
	"completedIds",
	"completed",
	"finishedIds",
	"finished",
	"achievementIds",
	"achievement_list",
	"completed_achievements",
	"got",
	"received",
	"unlocked",
	"accomplished",
	"achieved",
	"achievements_list",
	"completed_ids",
	"finished_ids",
	"achievement_ids",
	"unlocked_achievements",
}

func normalizedIDs(doc gjson.Result) (map[int]bool, bool) {
	if doc.IsArray() {
		ids := numericEntries(doc)
		return ids, len(ids) > 0
	}
	if !doc.IsObject() {
		return nil, false
	}
	for _, field := range idListFields {
		arr := doc.Get(field)
		if !arr.IsArray() {
			continue
		}
		if ids := numericEntries(arr); len(ids) > 0 {
			return ids, true
		}
	}
	return nil, false
}

const (
	maxScanDepth  = 5
	scanSampleLen = 30
)

// idFieldSynonyms name object fields that hold an achievement ID. Bare "id"
// only counts through unlockedEntry.
var idFieldSynonyms = []string{
	"achievementId",
	"achievement_id",
	"accomplishmentId",
	"taskId",
	"achievement",
}

type scanItem struct {
	node  gjson.Result
	depth int
}

// deepScan walks the document breadth-first up to maxScanDepth levels.
func deepScan(doc gjson.Result) (map[int]bool, bool) {
	ids := map[int]bool{}
	queue := []scanItem{{node: doc}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth > maxScanDepth {
			continue
		}

		switch {
		case item.node.IsArray():
			queue = scanArray(item, ids, queue)
		case item.node.IsObject():
			queue = scanObject(item, ids, queue)
		}
	}
	return ids, len(ids) > 0
}

// scanArray inspects the first scanSampleLen entries; when they yield IDs,
// the remainder is scanned flat without descending.
func scanArray(item scanItem, ids map[int]bool, queue []scanItem) []scanItem {
	entries := item.node.Array()
	sample := entries[:min(len(entries), scanSampleLen)]

	found := false
	for _, v := range sample {
		if id, ok := entryID(v); ok {
			ids[id] = true
			found = true
			continue
		}
		if v.IsObject() || v.IsArray() {
			queue = append(queue, scanItem{node: v, depth: item.depth + 1})
		}
	}

	if found {
		for _, v := range entries[len(sample):] {
			if id, ok := entryID(v); ok {
				ids[id] = true
			}
		}
	}
	return queue
}

func scanObject(item scanItem, ids map[int]bool, queue []scanItem) []scanItem {
	if isLocked(item.node) {
		return queue
	}

	for _, field := range idFieldSynonyms {
		if id, ok := positiveInt(item.node.Get(field)); ok {
			ids[id] = true
		}
	}

	item.node.ForEach(func(_, v gjson.Result) bool {
		switch {
		case v.IsObject():
			if id, ok := timedEntry(v); ok {
				ids[id] = true
				return true
			}
			queue = append(queue, scanItem{node: v, depth: item.depth + 1})
		case v.IsArray():
			queue = append(queue, scanItem{node: v, depth: item.depth + 1})
		}
		return true
	})
	return queue
}

// entryID reads an ID from a scanned array element: a bare positive number
// or a timed entry object.
func entryID(v gjson.Result) (int, bool) {
	if v.Type == gjson.Number {
		return positiveInt(v)
	}
	return timedEntry(v)
}

// timedEntry is unlockedEntry with the timestamp required.
func timedEntry(v gjson.Result) (int, bool) {
	if !v.IsObject() || !v.Get("timestamp").Exists() {
		return 0, false
	}
	return unlockedEntry(v)
}

// unlockedEntries collects IDs of unlocked entry objects in arr.
func unlockedEntries(arr gjson.Result) map[int]bool {
	ids := map[int]bool{}
	arr.ForEach(func(_, v gjson.Result) bool {
		if id, ok := unlockedEntry(v); ok {
			ids[id] = true
		}
		return true
	})
	return ids
}

// unlockedEntry accepts an object with a truthy id whose timestamp is not
// exactly zero. A missing timestamp counts as unlocked.
func unlockedEntry(v gjson.Result) (int, bool) {
	if !v.IsObject() {
		return 0, false
	}
	id, ok := positiveInt(v.Get("id"))
	if !ok {
		return 0, false
	}
	if isLocked(v) {
		return 0, false
	}
	return id, true
}

// isLocked reports an object whose timestamp is exactly numeric zero.
func isLocked(v gjson.Result) bool {
	ts := v.Get("timestamp")
	return ts.Type == gjson.Number && ts.Num == 0
}

func numericEntries(arr gjson.Result) map[int]bool {
	ids := map[int]bool{}
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.Number {
			return true
		}
		if id, ok := positiveInt(v); ok {
			ids[id] = true
		}
		return true
	})
	return ids
}

// positiveInt accepts positive integral numbers and strings holding one.
func positiveInt(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num <= 0 || v.Num != float64(int64(v.Num)) {
			return 0, false
		}
		return int(v.Num), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func firstIsObject(arr gjson.Result) bool {
	first := arr.Get("0")
	return first.IsObject()
}
