package app

// Command はプロセスの起動モード。
type Command string

const (
	// CommandServe はBFFのHTTPサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除を実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はセッションテーブルのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中サーバーの/healthを確認する。distrolessイメージ用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数から起動モードを決める。
// 空または未知の値はserveとして扱い、2つ目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
