// Package internal 實現多人遊戲的即時會話中繼。
//
// 系統設計問題：
//   多個玩家透過 WebSocket 連進同一世界，如何讓每個人即時
//   看到其他人的加入、移動、射擊、受擊與離開？
//
// 核心挑戰：
//   1. 會話生命週期 - 連接、進入遊戲、斷線的狀態轉換與清理
//   2. 廣播語義 - 「除自己外的全房間」與「全房間」兩種投遞
//   3. 命中結算 - 傷害、死亡判定與拋射物銷毀的固定順序
//   4. 濫用防護 - 負載上限、IP 連接追蹤、事件頻率統計
//
// 架構分層：
//
//	WebSocketHub / Connection  傳輸層（gorilla/websocket，心跳與緩衝發送）
//	        ↓ Dispatch
//	Guard                      濫用防護（大小檢查在反序列化之前）
//	        ↓ OnMessage
//	Registry                   事件調度與會話註冊（單一互斥鎖序列化）
//	        ↓
//	Room / Session             房間成員與廣播
//	ProjectileStore            拋射物註冊表與過期清掃
//
// 並發模型：Registry 的互斥鎖序列化所有事件處理，等價於單線程
// 事件循環——Room 與 Session 因此不需要自己的鎖。只有
// ProjectileStore 有獨立鎖，因為清掃 goroutine 在事件路徑之外
// 訪問它。
package internal
