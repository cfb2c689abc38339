package model

import "time"

// Conversation 买卖双方围绕某个房源的会话
// 同一 (property_id, buyer_id, seller_id) 三元组至多一个会话
type Conversation struct {
	ID                int64      `json:"id"`
	PropertyID        int64      `json:"propertyId"`
	BuyerID           int64      `json:"buyerId"`
	SellerID          int64      `json:"sellerId"`
	LastMessage       string     `json:"lastMessage"`
	LastMessageAt     *time.Time `json:"lastMessageAt"`
	BuyerUnreadCount  int        `json:"buyerUnreadCount"`
	SellerUnreadCount int        `json:"sellerUnreadCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsParticipant 判断用户是否是会话参与者
func (c *Conversation) IsParticipant(userID int64) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// PeerOf 返回会话中另一方的用户 ID
func (c *Conversation) PeerOf(userID int64) int64 {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// UnreadOf 返回指定参与者的未读数
func (c *Conversation) UnreadOf(userID int64) int {
	if c.BuyerID == userID {
		return c.BuyerUnreadCount
	}
	return c.SellerUnreadCount
}
