package main

import "github.com/MiiZZo/voicechat/cmd"

func main() {
	cmd.Execute()
}
