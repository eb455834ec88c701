package notification

// Route は1件の通知イベントに対する配信判定を行う純粋関数。
// 同じ(種類, 設定)の組に対して常に同じ判定を返すため、
// イベントフィードの再配信時に再評価しても結果が変わらない。
//
// 判定は先勝ちで以下の順に評価する。
//  1. マスタースイッチが無効なら抑制
//  2. チャット系の種類はチャットモードに従う
//  3. カテゴリトグルが無効なら抑制
//  4. それ以外は配信
func Route(t Type, prefs Preferences) Decision {
	if !prefs.NotificationsEnabled {
		return DecisionSuppress
	}

	if isChatType(t) {
		switch prefs.ChatMode {
		case ChatModeMuted:
			return DecisionSuppress
		case ChatModeMentionsOnly:
			if t == TypeChatMessage {
				return DecisionSuppress
			}
			return DecisionDeliver
		default:
			return DecisionDeliver
		}
	}

	if category, ok := CategoryOf(t); ok && !prefs.categoryEnabled(category) {
		return DecisionSuppress
	}

	return DecisionDeliver
}

// RouteWithoutPreferences は設定の取得に失敗した場合の縮退判定を行う。
// アカウントセキュリティ系の通知はフェイルオープン（配信）、
// それ以外はフェイルクローズ（抑制）とする。障害時にセキュリティ通知を
// 取りこぼさず、かつ通知の氾濫を避けるための方針。
func RouteWithoutPreferences(t Type) Decision {
	if category, ok := CategoryOf(t); ok && category == CategoryAccountSecurity {
		return DecisionDeliver
	}
	return DecisionSuppress
}
