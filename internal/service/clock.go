package service

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // 固定时区不依赖系统时区库

	"KayaAttend/internal/model"
	"KayaAttend/utils"
)

const (
	clockDateLayout = "02/01/2006"
	clockTimeLayout = "15:04:05 MST"

	// DefaultClockInterval 时钟推送间隔
	DefaultClockInterval = time.Second
)

// ClockSource 固定时区的时钟，时区与格式都不可由用户修改
type ClockSource struct {
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
}

// NewClockSource 加载时区失败直接返回错误，由调用方决定是否退出
func NewClockSource(timezone string) (*ClockSource, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	return &ClockSource{
		loc:      loc,
		now:      time.Now,
		interval: DefaultClockInterval,
	}, nil
}

// WithNow 替换时间来源，测试中使用
func (c *ClockSource) WithNow(now func() time.Time) *ClockSource {
	c.now = now
	return c
}

// WithInterval 替换推送间隔，测试中使用
func (c *ClockSource) WithInterval(interval time.Duration) *ClockSource {
	c.interval = interval
	return c
}

// Snapshot 当前时刻的日期和时间
func (c *ClockSource) Snapshot() model.ClockSnapshot {
	t := c.now().In(c.loc)
	return model.ClockSnapshot{
		Date: t.Format(clockDateLayout),
		Time: t.Format(clockTimeLayout),
	}
}

// ClockSubscription 一次 Start 对应的订阅，必须 Stop 释放
type ClockSubscription struct {
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start 立即推送一次，之后按间隔推送，直到 Stop
func (c *ClockSource) Start(callback func(model.ClockSnapshot)) *ClockSubscription {
	sub := &ClockSubscription{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	callback(c.Snapshot())

	go func() {
		defer close(sub.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-sub.stopCh:
				return
			case <-ticker.C:
				callback(c.Snapshot())
			}
		}
	}()

	return sub
}

// Stop 幂等，返回时推送 goroutine 已退出；不能在回调中调用
func (s *ClockSubscription) Stop() {
	if s == nil {
		return
	}

	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}

// To12Hour 把 "HH:MM:SS[ ZONE]" 转为 "H:MMAM/PM"
func To12Hour(snapshotTime string) (string, error) {
	parsed, err := utils.ParseClockTime(snapshotTime)
	if err != nil {
		return "", err
	}

	return utils.Format12Hour(parsed), nil
}
