package filewatcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tune-fusion/app/config"
	"tune-fusion/app/logger"

	"github.com/fsnotify/fsnotify"
)

// KickFunc 有新文件落盘时唤醒对账循环
type KickFunc func()

// 音频文件扩展名
var audioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
}

// MusicWatcher 监控音乐根目录。新文件落盘意味着本地库这一事实来源
// 可能已经满足了某些在途任务，立刻唤醒对账循环而不是干等下一轮。
type MusicWatcher struct {
	cfg     *config.WatcherConfig
	logger  *logger.Logger
	kick    KickFunc
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending *time.Timer
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New 创建音乐目录监控器，未启用时返回 nil
func New(cfg *config.WatcherConfig, log *logger.Logger, kick KickFunc) (*MusicWatcher, error) {
	if !cfg.Enabled || cfg.Path == "" {
		return nil, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	m := &MusicWatcher{
		cfg:     cfg,
		logger:  log,
		kick:    kick,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
	}

	// 递归挂上现有目录，fsnotify 本身不支持递归
	if err := m.addRecursive(cfg.Path); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return m, nil
}

// Start 启动监控
func (m *MusicWatcher) Start() {
	if m == nil {
		return
	}
	m.wg.Add(1)
	go m.loop()
	m.logger.Infof("音乐目录监控已启动: %s", m.cfg.Path)
}

// Stop 停止监控
func (m *MusicWatcher) Stop() {
	if m == nil {
		return
	}
	close(m.stopCh)
	m.watcher.Close()
	m.wg.Wait()
	m.logger.Info("音乐目录监控已停止")
}

func (m *MusicWatcher) loop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warnf("目录监控出错: %v", err)
		}
	}
}

func (m *MusicWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// 新目录挂上监控
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if err := m.addRecursive(event.Name); err != nil {
			m.logger.Warnf("挂载新目录监控失败: %s, err=%v", event.Name, err)
		}
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !audioExtensions[ext] {
		return
	}

	m.logger.Debugf("检测到新音频文件: %s", event.Name)
	m.scheduleKick()
}

// scheduleKick 事件去抖，一批文件落盘只唤醒一次
func (m *MusicWatcher) scheduleKick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(10*time.Second, func() {
		m.logger.Info("新文件落盘，唤醒对账循环")
		m.kick()
	})
}

// addRecursive 递归添加目录监控
func (m *MusicWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return m.watcher.Add(path)
		}
		return nil
	})
}
