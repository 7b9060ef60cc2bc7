package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "blink 182", Normalize("Blink-182"))
	assert.Equal(t, "blink 182", Normalize("blink 182"))
	assert.Equal(t, "sigur ros", Normalize("Sigur Rós"))
	assert.Equal(t, "beatles", Normalize("The Beatles"))
	assert.Equal(t, "beatles", Normalize("beatles"))
	assert.Equal(t, "ac dc", Normalize("AC/DC"))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("  --!!  "))
}

func TestSimilarityEqualAfterNormalize(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Blink-182", "blink 182"))
	assert.Equal(t, 1.0, Similarity("Sigur Rós", "sigur ros"))
	assert.Equal(t, 1.0, Similarity("The Beatles", "Beatles"))
}

func TestSimilarityDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("OK Computer", "Abbey Road"))
	assert.Equal(t, 0.0, Similarity("", "Abbey Road"))
	assert.Equal(t, 0.0, Similarity("OK Computer", ""))
}

func TestSimilarityNearMiss(t *testing.T) {
	// 豪华版标题共享大部分词，应该明显高于阈值但不等于 1
	score := Similarity("Enema of the State", "Enema of the State Deluxe Edition")
	assert.Greater(t, score, 0.7)
	assert.Less(t, score, 1.0)
}

func TestPairSimilarity(t *testing.T) {
	// 完全一致
	assert.Equal(t, 1.0, PairSimilarity("Blink-182", "Dude Ranch", "blink 182", "Dude Ranch"))

	// 艺术家一致、专辑是豪华版变体，仍应过 0.75 阈值
	score := PairSimilarity("Blink-182", "Enema of the State",
		"blink 182", "Enema of the State Deluxe Edition")
	assert.Greater(t, score, 0.75)

	// 完全不相关
	assert.Equal(t, 0.0, PairSimilarity("Radiohead", "OK Computer", "ABBA", "Arrival"))
}

func TestSharesPrefix(t *testing.T) {
	assert.True(t, SharesPrefix("Blink-182", "blink 182", DefaultPrefixLength))
	assert.True(t, SharesPrefix("The Beatles", "Beatles", DefaultPrefixLength))
	assert.False(t, SharesPrefix("Radiohead", "Blink-182", DefaultPrefixLength))

	// 短于前缀长度的名称整体比较
	assert.True(t, SharesPrefix("ABBA", "abba", DefaultPrefixLength))
	assert.False(t, SharesPrefix("ABBA", "AC/DC", DefaultPrefixLength))

	assert.False(t, SharesPrefix("", "Beatles", DefaultPrefixLength))
}

func TestContainsNormalized(t *testing.T) {
	// 发行版本标题通常带格式和年份装饰
	assert.True(t, ContainsNormalized("Blink-182 - Enema Of The State [2013] FLAC", "Enema of the State"))
	assert.False(t, ContainsNormalized("Blink-182 - Dude Ranch", "Enema of the State"))
	assert.False(t, ContainsNormalized("", "Enema of the State"))
	assert.False(t, ContainsNormalized("Blink-182 - Dude Ranch", ""))
}
