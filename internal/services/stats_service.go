// internal/services/stats_service.go
package services

import (
	"time"

	"github.com/Corphon/CineGenieMCP/internal/store"
	"github.com/Corphon/CineGenieMCP/internal/utils"
)

// StatsService 汇总运行期计数和存储规模
type StatsService struct {
	docs      *store.DocumentStore
	images    *store.BlobStore
	videos    *store.BlobStore
	startedAt time.Time
}

// NewStatsService 创建统计服务
func NewStatsService(docs *store.DocumentStore, images, videos *store.BlobStore) *StatsService {
	return &StatsService{
		docs:      docs,
		images:    images,
		videos:    videos,
		startedAt: time.Now(),
	}
}

// Stats 统计快照
type Stats struct {
	Scripts       int              `json:"scripts"`
	ImageAssets   int              `json:"image_assets"`
	VideoAssets   int              `json:"video_assets"`
	Counters      map[string]int64 `json:"counters"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// GetStats 汇总当前统计
func (s *StatsService) GetStats() (*Stats, error) {
	docs, err := s.docs.ListAll()
	if err != nil {
		return nil, err
	}
	imageInfos, err := s.images.ListAll()
	if err != nil {
		return nil, err
	}
	videoInfos, err := s.videos.ListAll()
	if err != nil {
		return nil, err
	}

	return &Stats{
		Scripts:       len(docs),
		ImageAssets:   len(imageInfos),
		VideoAssets:   len(videoInfos),
		Counters:      utils.GetMetricsCollector().Snapshot(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}, nil
}
