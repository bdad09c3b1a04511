package uuid

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// GenUUID16 生成16位短id，用于请求追踪
func GenUUID16() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:16]
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// GenId 生成全局有序的int64 id，多实例部署时用SPREADFLOW_NODE_ID区分节点
func GenId() int64 {
	nodeOnce.Do(func() {
		nodeId := int64(1)
		if v := os.Getenv("SPREADFLOW_NODE_ID"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeId = n
			}
		}
		n, err := snowflake.NewNode(nodeId)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node.Generate().Int64()
}
