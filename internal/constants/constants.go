package constants

const USER_AGENT = "imageloader/1.0 (+https://github.com/openmarket/imageloader)"
