package model

// Identity 连接绑定的已验证身份
// 在握手认证成功后创建，连接生命周期内不可变
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}
