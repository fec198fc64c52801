package hmi

// 液晶屏提示文字，前导空格对应原设备的光标位置
const (
	msgEnterPass    = "plz enter pass:"
	msgReenterTop   = "plz re-enter the"
	msgReenterBot   = "same pass:"
	msgSavedTop     = "Password Saved"
	msgSavedBot     = "  Successfully"
	msgTruePass     = "   TRUE PASS"
	msgWrongPass    = "   Wrong Pass"
	msgErrorTop     = "     ERROR"
	msgErrorBot     = "  WRONG PASS"
	msgDoorIs       = "    Door is"
	msgUnlocking    = "   Unlocking"
	msgWelcome      = "    Welcome"
	msgLocking      = "   Locking"
	msgMenuOpen     = "+ : Open Door"
	msgMenuChange   = "- : Change Pass"
	msgWaitHandshak = "Connecting..."
)
