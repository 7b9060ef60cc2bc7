package textmatch

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 模糊匹配是对账环节的正确性兜底，所有策略参数集中在这里，
// 方便单独调整和测试。
const (
	// DefaultPrefixLength 候选艺术家筛选使用的公共前缀长度
	DefaultPrefixLength = 5
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize 归一化名称：去除变音符号、标点，转小写并压缩空白。
// "Blink-182" 和 "blink 182" 归一化后相等。
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// 去除变音符号（é → e）
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	out := strings.TrimSpace(b.String())
	// 去掉开头的冠词，"The Beatles" 与 "Beatles" 视为同名
	out = strings.TrimPrefix(out, "the ")
	return strings.TrimSpace(out)
}

// tokenCounts 统计归一化字符串的词频向量
func tokenCounts(s string) (map[string]float64, float64) {
	tokens := map[string]float64{}
	for _, tok := range strings.Fields(s) {
		tokens[tok]++
		// 附加字符二元组，缓解短标题下整词不匹配的问题
		rs := []rune(tok)
		for i := 0; i+2 <= len(rs); i++ {
			tokens["#"+string(rs[i:i+2])] += 0.5
		}
	}

	var sum float64
	for _, c := range tokens {
		sum += c * c
	}
	return tokens, math.Sqrt(sum)
}

// Similarity 计算两个名称归一化后的余弦相似度，范围 [0, 1]
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, normA := tokenCounts(na)
	tb, normB := tokenCounts(nb)
	if normA == 0 || normB == 0 {
		return 0
	}

	var dot float64
	for tok, ca := range ta {
		if cb, ok := tb[tok]; ok {
			dot += ca * cb
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (normA * normB)
}

// PairSimilarity 对 (艺术家, 专辑) 二元组做加权相似度，
// 专辑名权重更高，因为艺术家名已经过候选前缀筛选。
func PairSimilarity(artistA, albumA, artistB, albumB string) float64 {
	artistScore := Similarity(artistA, artistB)
	albumScore := Similarity(albumA, albumB)
	return artistScore*0.4 + albumScore*0.6
}

// SharesPrefix 判断两个名称归一化后是否共享 n 个字符的前缀，
// 用于在全库中筛选模糊匹配候选
func SharesPrefix(a, b string, n int) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}

	ra, rb := []rune(na), []rune(nb)
	if len(ra) < n || len(rb) < n {
		// 短名称直接比较整体
		return na == nb
	}
	return string(ra[:n]) == string(rb[:n])
}

// ContainsNormalized 判断归一化后 haystack 是否包含 needle 子串
func ContainsNormalized(haystack, needle string) bool {
	h, n := Normalize(haystack), Normalize(needle)
	if h == "" || n == "" {
		return false
	}
	return strings.Contains(h, n)
}
