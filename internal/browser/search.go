// internal/browser/search.go
package browser

import (
	"context"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FindElementsByText runs the fuzzy search script against the live DOM and
// returns candidates ranked by priority, best first. Dynamically rendered
// elements are included since the sweep happens in-page.
func (p *page) FindElementsByText(ctx context.Context, text string) ([]schemas.ElementCandidate, error) {
	if text == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := p.page.Evaluate(findByTextJS, text)
	if err != nil {
		return nil, wrap(err)
	}
	candidates, err := decodeCandidates(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding search results for %q: %w", text, err)
	}
	return candidates, nil
}

// rawElement mirrors the object shape the in-page script emits. Numbers come
// back as float64 through the CDP bridge.
type rawElement struct {
	TagName       string     `json:"tagName"`
	Matches       []rawMatch `json:"matches"`
	Selectors     []string   `json:"selectors"`
	IsVisible     bool       `json:"isVisible"`
	IsInteractive bool       `json:"isInteractive"`
	IsClickable   bool       `json:"isClickable"`
	TextContent   string     `json:"textContent"`
}

type rawMatch struct {
	Type     string  `json:"type"`
	MaxScore float64 `json:"maxScore"`
	Score    float64 `json:"score"`
}

func (m rawMatch) best() float64 {
	if m.MaxScore > 0 {
		return m.MaxScore
	}
	if m.Score > 0 {
		return m.Score
	}
	return 50
}

// decodeCandidates converts the script's output into ranked candidates. The
// priority blends visibility, interactivity, and match quality; the selector
// list is capped at the five most specific suggestions.
func decodeCandidates(raw interface{}) ([]schemas.ElementCandidate, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var elements []rawElement
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, err
	}

	candidates := make([]schemas.ElementCandidate, 0, len(elements))
	for _, el := range elements {
		if len(el.Matches) == 0 || len(el.Selectors) == 0 {
			continue
		}

		var maxScore, sum float64
		for _, m := range el.Matches {
			s := m.best()
			sum += s
			if s > maxScore {
				maxScore = s
			}
		}
		avg := sum / float64(len(el.Matches))

		priority := maxScore + avg*0.3 + float64(len(el.Matches))*5
		if el.IsVisible {
			priority += 20
		}
		if el.IsInteractive {
			priority += 15
		}
		if el.IsClickable {
			priority += 10
		}

		selectors := el.Selectors
		if len(selectors) > 5 {
			selectors = selectors[:5]
		}

		candidates = append(candidates, schemas.ElementCandidate{
			Tag:                el.TagName,
			Text:               el.TextContent,
			MatchScore:         int(maxScore),
			Visible:            el.IsVisible,
			Interactive:        el.IsInteractive,
			Clickable:          el.IsClickable,
			Priority:           int(priority),
			Selectors:          selectors,
			InteractionMethods: interactionMethods(el),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates, nil
}

func interactionMethods(el rawElement) []string {
	var methods []string
	if el.IsClickable {
		methods = append(methods, "click")
	}
	switch el.TagName {
	case "input", "textarea":
		methods = append(methods, "fill", "press")
	case "select":
		methods = append(methods, "selectOption")
	}
	return methods
}

// findByTextJS scans every element for attribute, text, and property matches
// against a normalized search text. Scoring: exact 100, prefix 80, contains
// 60, suffix 40, +20 for equal normalized length, +10 for multiword matches,
// capped at 100. Selector suggestions go from most to least specific.
const findByTextJS = `(searchText) => {
	const results = [];
	const lowered = (searchText || '').toLowerCase();

	function normalizeText(text) {
		if (!text) return '';
		return String(text).toLowerCase()
			.replace(/[\s_-]+/g, '')
			.replace(/[^a-z0-9]/g, '');
	}

	function matchScore(searchNorm, targetNorm, originalTarget) {
		let score = 0;
		if (!searchNorm || !targetNorm) return 0;
		if (targetNorm === searchNorm) {
			score = 100;
		} else if (targetNorm.startsWith(searchNorm)) {
			score = 80;
		} else if (targetNorm.includes(searchNorm)) {
			score = 60;
		} else if (targetNorm.endsWith(searchNorm)) {
			score = 40;
		} else {
			return 0;
		}
		if (targetNorm.length === searchNorm.length) score += 20;
		if (String(originalTarget).includes(' ') && lowered.includes(' ')) score += 10;
		return Math.min(score, 100);
	}

	function buildSelectors(element) {
		const selectors = [];
		if (element.id) selectors.push('#' + element.id);
		if (element.className && typeof element.className === 'string') {
			const classes = element.className.trim().split(/\s+/).filter(c => c.length > 0);
			if (classes.length > 0) selectors.push('.' + classes.join('.'));
		}
		for (const attr of element.attributes) {
			if (attr.name.startsWith('data-') && attr.value) {
				selectors.push('[' + attr.name + '="' + attr.value + '"]');
			}
		}
		for (const name of ['name', 'type', 'role', 'aria-label']) {
			const value = element.getAttribute(name);
			if (value) selectors.push('[' + name + '="' + value + '"]');
		}
		const textContent = (element.textContent || '').trim();
		if (textContent && textContent.length < 50) {
			selectors.push('text="' + textContent + '"');
		}
		selectors.push(element.tagName.toLowerCase());
		return selectors;
	}

	function checkElement(element) {
		const matches = [];
		const searchNorm = normalizeText(lowered);

		for (const attr of element.attributes) {
			const nameScore = matchScore(searchNorm, normalizeText(attr.name), attr.name);
			const valueScore = matchScore(searchNorm, normalizeText(attr.value), attr.value);
			if (nameScore > 0 || valueScore > 0) {
				matches.push({type: 'attribute', name: attr.name, maxScore: Math.max(nameScore, valueScore)});
			}
		}

		const textContent = (element.textContent || '').trim();
		const textScore = matchScore(searchNorm, normalizeText(textContent), textContent);
		if (textScore > 0) {
			matches.push({type: 'textContent', score: textScore});
		}
		const innerText = (element.innerText || '').trim();
		if (innerText && innerText !== textContent) {
			const innerScore = matchScore(searchNorm, normalizeText(innerText), innerText);
			if (innerScore > 0) matches.push({type: 'innerText', score: innerScore});
		}

		for (const prop of ['placeholder', 'value', 'title', 'alt', 'aria-label']) {
			const value = element[prop] || element.getAttribute(prop);
			if (value) {
				const propScore = matchScore(searchNorm, normalizeText(value), value);
				if (propScore > 0) matches.push({type: 'property', name: prop, score: propScore});
			}
		}
		return matches;
	}

	const interactiveTags = {button: 1, a: 1, input: 1, select: 1, textarea: 1};
	for (const element of document.querySelectorAll('*')) {
		const matches = checkElement(element);
		if (matches.length === 0) continue;

		const rect = element.getBoundingClientRect();
		const style = window.getComputedStyle(element);
		const tag = element.tagName.toLowerCase();

		const isVisible = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none' &&
			element.offsetParent !== null;
		const isInteractive = tag in interactiveTags ||
			element.onclick !== null ||
			!!element.getAttribute('onclick') ||
			!!element.getAttribute('href') ||
			style.cursor === 'pointer' ||
			element.hasAttribute('tabindex');
		const isClickable = isInteractive || style.pointerEvents !== 'none';

		results.push({
			tagName: tag,
			matches: matches,
			selectors: buildSelectors(element),
			isVisible: isVisible,
			isInteractive: isInteractive,
			isClickable: isClickable,
			textContent: textOf(element)
		});
	}

	function textOf(element) {
		return (element.textContent || '').trim().substring(0, 100);
	}

	return results;
}`
