package notification

import "testing"

// TestRoute は配信判定の基本動作を検証する。
func TestRoute(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト設定ではすべての種類が配信される", func(t *testing.T) {
		t.Parallel()
		types := []Type{
			TypeMention, TypeChatMessage, TypeChatMention,
			TypeTeamInvite, TypeMemberJoined,
			TypeTaskAssigned, TypeReportReady, TypeReminder,
			TypeSystem, TypeMaintenance,
			TypePasswordChanged, TypeNewDeviceLogin,
		}
		for _, typ := range types {
			if got := Route(typ, DefaultPreferences()); got != DecisionDeliver {
				t.Errorf("Route(%s): got %s, want %s", typ, got, DecisionDeliver)
			}
		}
	})

	t.Run("マスタースイッチが無効なら全種類が抑制される", func(t *testing.T) {
		t.Parallel()
		prefs := DefaultPreferences()
		prefs.NotificationsEnabled = false

		types := []Type{
			TypeMention, TypeChatMention, TypeTeamInvite,
			TypeReportReady, TypeSystem, TypePasswordChanged,
		}
		for _, typ := range types {
			if got := Route(typ, prefs); got != DecisionSuppress {
				t.Errorf("Route(%s): got %s, want %s", typ, got, DecisionSuppress)
			}
		}
	})

	t.Run("マスタースイッチはカテゴリトグルより優先される", func(t *testing.T) {
		t.Parallel()
		prefs := DefaultPreferences()
		prefs.NotificationsEnabled = false
		prefs.AccountSecurity = true

		if got := Route(TypePasswordChanged, prefs); got != DecisionSuppress {
			t.Errorf("Route(passwordChanged): got %s, want %s", got, DecisionSuppress)
		}
	})
}

// TestRouteChatMode はチャットモードごとの判定マトリクスを検証する。
func TestRouteChatMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode ChatMode
		typ  Type
		want Decision
	}{
		{"allモードでは通常メッセージも配信", ChatModeAll, TypeChatMessage, DecisionDeliver},
		{"allモードではチャットメンションも配信", ChatModeAll, TypeChatMention, DecisionDeliver},
		{"mentions_onlyモードでは通常メッセージは抑制", ChatModeMentionsOnly, TypeChatMessage, DecisionSuppress},
		{"mentions_onlyモードではチャットメンションは配信", ChatModeMentionsOnly, TypeChatMention, DecisionDeliver},
		{"mutedモードでは通常メッセージは抑制", ChatModeMuted, TypeChatMessage, DecisionSuppress},
		{"mutedモードではチャットメンションも抑制", ChatModeMuted, TypeChatMention, DecisionSuppress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prefs := DefaultPreferences()
			prefs.ChatMode = tt.mode

			if got := Route(tt.typ, prefs); got != tt.want {
				t.Errorf("Route(%s, mode=%s): got %s, want %s", tt.typ, tt.mode, got, tt.want)
			}
		})
	}

	t.Run("チャットモードはチャット系以外の種類に影響しない", func(t *testing.T) {
		t.Parallel()
		prefs := DefaultPreferences()
		prefs.ChatMode = ChatModeMuted

		// チェックインコメントのメンションはチャットモードの対象外
		if got := Route(TypeMention, prefs); got != DecisionDeliver {
			t.Errorf("Route(mention): got %s, want %s", got, DecisionDeliver)
		}
		if got := Route(TypeTeamInvite, prefs); got != DecisionDeliver {
			t.Errorf("Route(teamInvite): got %s, want %s", got, DecisionDeliver)
		}
	})
}

// TestRouteCategoryToggle はカテゴリトグルごとの判定を検証する。
func TestRouteCategoryToggle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		disable func(*Preferences)
		typ     Type
		want    Decision
	}{
		{"チーム活動を無効にするとチーム招待は抑制", func(p *Preferences) { p.TeamActivity = false }, TypeTeamInvite, DecisionSuppress},
		{"チーム活動を無効にするとメンバー参加は抑制", func(p *Preferences) { p.TeamActivity = false }, TypeMemberJoined, DecisionSuppress},
		{"タスク更新を無効にするとタスク割り当ては抑制", func(p *Preferences) { p.TaskUpdates = false }, TypeTaskAssigned, DecisionSuppress},
		{"タスク更新を無効にするとレポート完了は抑制", func(p *Preferences) { p.TaskUpdates = false }, TypeReportReady, DecisionSuppress},
		{"タスク更新を無効にするとリマインダーは抑制", func(p *Preferences) { p.TaskUpdates = false }, TypeReminder, DecisionSuppress},
		{"システム警告を無効にするとシステム通知は抑制", func(p *Preferences) { p.SystemAlerts = false }, TypeSystem, DecisionSuppress},
		{"システム警告を無効にするとメンテナンス告知は抑制", func(p *Preferences) { p.SystemAlerts = false }, TypeMaintenance, DecisionSuppress},
		{"セキュリティを無効にするとパスワード変更は抑制", func(p *Preferences) { p.AccountSecurity = false }, TypePasswordChanged, DecisionSuppress},
		{"セキュリティを無効にすると新デバイスログインは抑制", func(p *Preferences) { p.AccountSecurity = false }, TypeNewDeviceLogin, DecisionSuppress},
		{"他カテゴリのトグルは影響しない", func(p *Preferences) { p.TeamActivity = false }, TypeTaskAssigned, DecisionDeliver},
		{"カテゴリ対象外のメンションはトグルの影響を受けない", func(p *Preferences) {
			p.TeamActivity = false
			p.TaskUpdates = false
			p.SystemAlerts = false
			p.AccountSecurity = false
		}, TypeMention, DecisionDeliver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prefs := DefaultPreferences()
			tt.disable(&prefs)

			if got := Route(tt.typ, prefs); got != tt.want {
				t.Errorf("Route(%s): got %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

// TestRouteWithoutPreferences は設定取得に失敗した場合の縮退判定を検証する。
func TestRouteWithoutPreferences(t *testing.T) {
	t.Parallel()

	t.Run("アカウントセキュリティ系は配信される", func(t *testing.T) {
		t.Parallel()
		if got := RouteWithoutPreferences(TypePasswordChanged); got != DecisionDeliver {
			t.Errorf("RouteWithoutPreferences(passwordChanged): got %s, want %s", got, DecisionDeliver)
		}
		if got := RouteWithoutPreferences(TypeNewDeviceLogin); got != DecisionDeliver {
			t.Errorf("RouteWithoutPreferences(newDeviceLogin): got %s, want %s", got, DecisionDeliver)
		}
	})

	t.Run("セキュリティ系以外は抑制される", func(t *testing.T) {
		t.Parallel()
		types := []Type{
			TypeMention, TypeChatMessage, TypeChatMention,
			TypeTeamInvite, TypeTaskAssigned, TypeSystem,
		}
		for _, typ := range types {
			if got := RouteWithoutPreferences(typ); got != DecisionSuppress {
				t.Errorf("RouteWithoutPreferences(%s): got %s, want %s", typ, got, DecisionSuppress)
			}
		}
	})
}

// TestCategoryOf は通知の種類とカテゴリの対応を検証する。
func TestCategoryOf(t *testing.T) {
	t.Parallel()

	t.Run("対応表にある種類はカテゴリを返す", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			typ  Type
			want Category
		}{
			{TypeTeamInvite, CategoryTeamActivity},
			{TypeMemberJoined, CategoryTeamActivity},
			{TypeTaskAssigned, CategoryTaskUpdates},
			{TypeReportReady, CategoryTaskUpdates},
			{TypeReminder, CategoryTaskUpdates},
			{TypeSystem, CategorySystemAlerts},
			{TypeMaintenance, CategorySystemAlerts},
			{TypePasswordChanged, CategoryAccountSecurity},
			{TypeNewDeviceLogin, CategoryAccountSecurity},
		}
		for _, tt := range tests {
			got, ok := CategoryOf(tt.typ)
			if !ok {
				t.Errorf("CategoryOf(%s): 対応が見つかりません", tt.typ)
				continue
			}
			if got != tt.want {
				t.Errorf("CategoryOf(%s): got %s, want %s", tt.typ, got, tt.want)
			}
		}
	})

	t.Run("メンションとチャット系はカテゴリトグルの対象外", func(t *testing.T) {
		t.Parallel()
		for _, typ := range []Type{TypeMention, TypeChatMessage, TypeChatMention} {
			if _, ok := CategoryOf(typ); ok {
				t.Errorf("CategoryOf(%s): 対象外のはずが対応が返された", typ)
			}
		}
	})
}
