// internal/models/script.go
package models

// DefaultScript 新项目的示例脚本
const DefaultScript = `雨水無情地拍打在新東京霓虹閃爍的街道上。
賽佛拉起衣領，遮擋住他的義眼，試圖避開傾盆大雨。
「他們發現我了。」他低聲自語，瞥了一眼水坑中的倒影。
身後，執法機器人沉重的腳步聲越來越近。
他轉身閃進一條狹窄的小巷，通風口冒著白色的蒸汽。
是死路。
他猛然轉身，拔出等離子手槍。「來跳支舞吧。」`
