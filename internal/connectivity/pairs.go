// Package connectivity classifies channel pairs as excitatory or inhibitory and
// summarises their feature distributions per experiment.
package connectivity

import (
	"sort"

	"synstrength/pkg/domain"
)

// MinRecordings is the number of recordings a channel needs to take part in
// pairing.
const MinRecordings = 3

// QualifyingChannels returns, in ascending order, the channels with at least
// MinRecordings recordings.
func QualifyingChannels(counts map[int]int) []int {
	out := make([]int, 0, len(counts))
	for ch, n := range counts {
		if n >= MinRecordings {
			out = append(out, ch)
		}
	}
	sort.Ints(out)
	return out
}

// ExperimentPairs returns every ordered pair of distinct channels, sorted by
// (pre, post). channels must be sorted and free of duplicates.
func ExperimentPairs(channels []int) []domain.ChannelPair {
	if len(channels) < 2 {
		return nil
	}
	out := make([]domain.ChannelPair, 0, len(channels)*(len(channels)-1))
	for _, pre := range channels {
		for _, post := range channels {
			if pre != post {
				out = append(out, domain.ChannelPair{Pre: pre, Post: post})
			}
		}
	}
	return out
}
