package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 多实例部署时每个实例配置不同的 server.worker_id
// ============================================================================

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10                   // 机器ID位数
	sequenceBits   = 12                   // 序列号位数
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

var ErrInvalidWorkerID = fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	if workerID < 0 || workerID > maxWorkerID {
		return ErrInvalidWorkerID
	}
	once.Do(func() {
		defaultGenerator = &Snowflake{workerID: workerID}
	})
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	once.Do(func() {
		defaultGenerator = &Snowflake{workerID: 1}
	})
	return defaultGenerator.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		// 同一毫秒内，序列号递增
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		// 不同毫秒，序列号重置
		s.sequence = 0
	}

	s.timestamp = now

	// 组装ID
	id := ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence

	return id
}

func generateNo(prefix string) string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("%s%s%08d", prefix, timestamp, id%100000000)
}

// GenerateEventNo 生成佣金事件号
// 格式：CME + 年月日时分秒 + 雪花ID后8位
// 例如：CME2024011514305212345678
func GenerateEventNo() string {
	return generateNo("CME")
}

// GenerateEntryNo 生成钱包流水号
func GenerateEntryNo() string {
	return generateNo("WLE")
}

// GenerateWithdrawalNo 生成提现单号
func GenerateWithdrawalNo() string {
	return generateNo("WDR")
}

// GenerateReferralCode 生成推荐码，雪花ID转36进制
func GenerateReferralCode() string {
	return "R" + strings.ToUpper(strconv.FormatInt(NextID(), 36))
}
