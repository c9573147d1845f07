package embedding

import "github.com/hyperjump/shikibetsu/pkg/utils"

const (
	clsToken = 101
	sepToken = 102
	vocabCap = 30000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
	// TokenizePair encodes a premise/hypothesis pair for sequence-pair classification.
	TokenizePair(first, second string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens:
// [CLS] words [SEP].
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	return t.TokenizePair(text, "", maxTokens)
}

// TokenizePair produces [CLS] first [SEP] second [SEP], with token type 1 on the second segment.
// An empty second segment yields the single-sequence layout. The first segment is cut to leave
// room for the second.
func (t *SimpleTokenizer) TokenizePair(first, second string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	firstWords := SplitWords(first)
	secondWords := SplitWords(second)
	reserve := 0
	if len(secondWords) > 0 {
		reserve = min(len(secondWords)+1, maxTokens/2)
	}

	pos := 0
	put := func(id int64, segment int64) bool {
		if pos >= maxTokens {
			return false
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		tokenTypeIDs[pos] = segment
		pos++
		return true
	}
	put(clsToken, 0)
	for _, w := range firstWords {
		if pos >= maxTokens-1-reserve {
			break
		}
		put(wordID(w), 0)
	}
	put(sepToken, 0)
	if len(secondWords) == 0 {
		return inputIDs, attentionMask, tokenTypeIDs
	}
	for _, w := range secondWords {
		if pos >= maxTokens-1 {
			break
		}
		put(wordID(w), 1)
	}
	put(sepToken, 1)
	return inputIDs, attentionMask, tokenTypeIDs
}

func wordID(w string) int64 {
	return int64(HashString(w)%(vocabCap-1000)) + 1000
}

// SplitWords lowercases text and splits it into words, dropping punctuation.
func SplitWords(text string) []string {
	return utils.Tokens(text)
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
