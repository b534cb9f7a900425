package posting

import (
	"math/rand/v2"
	"sort"

	"video-publisher/internal"
	"video-publisher/internal/model"
)

func randomIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}

func sortVideosByCreated(items []model.VideoFile) []model.VideoFile {
	sorted := make([]model.VideoFile, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedTime.Equal(sorted[j].CreatedTime) {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].CreatedTime.Before(sorted[j].CreatedTime)
	})
	return sorted
}

// SelectVideo picks the next queued video: the oldest by creation time, or a uniformly random
// one for internal.SelectRandom. intn may be nil.
func SelectVideo(videos []model.VideoFile, policy string, intn func(int) int) *model.VideoFile {
	if len(videos) == 0 {
		return nil
	}
	if policy == internal.SelectRandom {
		if intn == nil {
			intn = randomIndex
		}
		v := videos[intn(len(videos))]
		return &v
	}
	v := sortVideosByCreated(videos)[0]
	return &v
}
