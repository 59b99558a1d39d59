package ids

import (
	"strconv"
	"sync"
	"time"
)

// Snowflake-style id generator. Message ids must be monotonic per node
// because the timeline tie-breaks equal timestamps by id ordering.
//
// Layout: 41 bits ms-since-epoch | 10 bits node | 12 bits sequence.
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64
	seq      int64
	lastTSMS int64
}

// NewGenerator nodeID 0~1023
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	return &Generator{
		epochMS: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		nodeID:  nodeID,
	}
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastTSMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// sequence exhausted within this millisecond
				for now <= g.lastTSMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & ((1 << 41) - 1)
		return (ts << 22) | (g.nodeID << 12) | g.seq
	}
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

var (
	defaultGen  = NewGenerator(1)
	defaultOnce sync.Once
)

// SetNodeID 可在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	defaultOnce.Do(func() { defaultGen = NewGenerator(nodeID) })
}

func Generate() int64 { return defaultGen.Next() }

func GenerateString() string { return defaultGen.NextString() }
