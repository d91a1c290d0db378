package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ArtifactModulePrefix 输入材料模块（简历/职位描述）
	ArtifactModulePrefix = "artifact"
	// MatchModulePrefix 匹配请求模块
	MatchModulePrefix = "match"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"

	// TenantPlaceholder 键中租户占位符
	TenantPlaceholder = "{tenant}"

	// KeyResumeHashSet 简历内容哈希集合 (SET)
	// 格式: app:artifact:dedup_set:{tenant}:resume
	KeyResumeHashSet = AppPrefix + ":" + ArtifactModulePrefix + ":" + EntityDedupSet + ":" + TenantPlaceholder + ":resume"

	// KeyJobDescHashSet 职位描述内容哈希集合 (SET)
	// 格式: app:artifact:dedup_set:{tenant}:jd
	KeyJobDescHashSet = AppPrefix + ":" + ArtifactModulePrefix + ":" + EntityDedupSet + ":" + TenantPlaceholder + ":jd"

	// KeyPairHashSet 简历-职位描述配对哈希集合 (SET)
	// 格式: app:match:dedup_set:{tenant}
	KeyPairHashSet = AppPrefix + ":" + MatchModulePrefix + ":" + EntityDedupSet + ":" + TenantPlaceholder
)
